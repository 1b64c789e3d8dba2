package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sjawhar/ghost-wispr-live/internal/api"
	"github.com/sjawhar/ghost-wispr-live/internal/history"
	"github.com/sjawhar/ghost-wispr-live/internal/level"
	"github.com/sjawhar/ghost-wispr-live/internal/session"
	"github.com/sjawhar/ghost-wispr-live/internal/urlstate"
)

const (
	PathLive    = "/live"
	PathHistory = "/history"

	controlTimeout = 10 * time.Second
	historyLimit   = 100
)

type ViewMode string

const (
	ViewList ViewMode = "list"
	ViewGrid ViewMode = "grid"
)

type SortOrder string

const (
	SortNewest SortOrder = history.SortNewest
	SortOldest SortOrder = history.SortOldest
)

type SessionView interface {
	Snapshot() session.Snapshot
	DismissNotice()
}

type Controls interface {
	StartSession(ctx context.Context) (api.StartResult, error)
	StopSession(ctx context.Context) error
}

type HistoryStore interface {
	Query(ctx context.Context, q history.Query) ([]history.Entry, error)
	Count(ctx context.Context, search string) (int, error)
}

type Deps struct {
	View     SessionView
	Controls Controls
	History  HistoryStore
	Nav      *urlstate.History
	// SearchDelay defers writing the search box into the location.
	SearchDelay time.Duration
}

type frameMsg level.Frame

// historyChangedMsg is sent after the history mirror reloads.
type historyChangedMsg struct{ count int }

type historyMsg struct {
	entries []history.Entry
	total   int
	err     error
}

type controlMsg struct {
	action    string
	sessionID string
	err       error
}

type Model struct {
	deps Deps
	nav  *urlstate.History

	search *urlstate.Param[string]
	mode   *urlstate.Param[ViewMode]
	sort   *urlstate.Param[SortOrder]

	snap    session.Snapshot
	frame   level.Frame
	entries []history.Entry
	total   int
	histErr error
	flash   string
	editing bool
	// lastHistory is where tab returns to on the history page.
	lastHistory string

	width, height int
}

func NewModel(deps Deps) Model {
	nav := deps.Nav
	if nav == nil {
		nav, _ = urlstate.NewHistory(PathLive)
		deps.Nav = nav
	}
	m := Model{
		deps:        deps,
		nav:         nav,
		search:      urlstate.Bind(nav, "q", "", urlstate.String(), urlstate.WithDelay(deps.SearchDelay)),
		mode:        urlstate.Bind(nav, "view", ViewList, urlstate.Enum(ViewList, ViewGrid)),
		sort:        urlstate.Bind(nav, "sort", SortNewest, urlstate.Enum(SortNewest, SortOldest)),
		lastHistory: PathHistory,
	}
	if deps.View != nil {
		m.snap = deps.View.Snapshot()
		m.frame = level.Frame{Level: m.snap.AudioLevel, Levels: m.snap.Levels}
	}
	return m
}

// Path is the page currently shown.
func (m Model) Path() string {
	return m.nav.Location().Path
}

func (m Model) Init() tea.Cmd {
	if m.Path() == PathHistory {
		return m.loadHistory()
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameMsg:
		m.frame = level.Frame(msg)
		if m.deps.View != nil {
			m.snap = m.deps.View.Snapshot()
		}

	case historyChangedMsg:
		if m.Path() == PathHistory {
			return m, m.loadHistory()
		}

	case historyMsg:
		m.histErr = msg.err
		if msg.err == nil {
			m.entries = msg.entries
			m.total = msg.total
		}

	case controlMsg:
		switch {
		case msg.err != nil:
			m.flash = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		case msg.sessionID != "":
			m.flash = fmt.Sprintf("%s requested (%s)", msg.action, msg.sessionID)
		default:
			m.flash = msg.action + " requested"
		}

	case tea.KeyMsg:
		if m.editing {
			return m.updateSearch(msg)
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.closeParams()
		return m, tea.Quit
	case "s":
		return m, m.control("start")
	case "x":
		return m, m.control("stop")
	case "esc":
		if m.deps.View != nil {
			m.deps.View.DismissNotice()
			m.snap = m.deps.View.Snapshot()
		}
		m.flash = ""
	case "tab":
		return m.switchPage()
	case "[":
		if m.nav.Back() {
			return m, m.afterPop()
		}
	case "]":
		if m.nav.Forward() {
			return m, m.afterPop()
		}
	case "/":
		if m.Path() == PathHistory {
			m.editing = true
		}
	case "v":
		if m.Path() == PathHistory {
			if m.mode.Get() == ViewList {
				m.mode.Set(ViewGrid)
			} else {
				m.mode.Set(ViewList)
			}
		}
	case "o":
		if m.Path() == PathHistory {
			if m.sort.Get() == SortNewest {
				m.sort.Set(SortOldest)
			} else {
				m.sort.Set(SortNewest)
			}
			return m, m.loadHistory()
		}
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	value := m.search.Get()
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.editing = false
		m.search.Flush()
		return m, nil
	case tea.KeyCtrlC:
		m.closeParams()
		return m, tea.Quit
	case tea.KeyTab:
		return m.switchPage()
	case tea.KeyBackspace:
		if value == "" {
			return m, nil
		}
		r := []rune(value)
		value = string(r[:len(r)-1])
	case tea.KeySpace:
		value += " "
	case tea.KeyRunes:
		value += string(msg.Runes)
	default:
		return m, nil
	}
	m.search.Set(value)
	return m, m.loadHistory()
}

// switchPage pushes the other page. Pending parameter writes land on the page
// being left.
func (m Model) switchPage() (tea.Model, tea.Cmd) {
	m.flushParams()
	m.editing = false

	if m.Path() == PathHistory {
		m.lastHistory = m.nav.Location().RequestURI()
		_ = m.nav.Push(PathLive)
		return m, nil
	}
	_ = m.nav.Push(m.lastHistory)
	m.rebind()
	return m, m.loadHistory()
}

// rebind re-reads the params after a push, which does not notify popstate.
func (m *Model) rebind() {
	m.closeParams()
	m.search = urlstate.Bind(m.nav, "q", "", urlstate.String(), urlstate.WithDelay(m.deps.SearchDelay))
	m.mode = urlstate.Bind(m.nav, "view", ViewList, urlstate.Enum(ViewList, ViewGrid))
	m.sort = urlstate.Bind(m.nav, "sort", SortNewest, urlstate.Enum(SortNewest, SortOldest))
}

func (m Model) afterPop() tea.Cmd {
	if m.Path() == PathHistory {
		return m.loadHistory()
	}
	return nil
}

func (m Model) flushParams() {
	m.search.Flush()
	m.mode.Flush()
	m.sort.Flush()
}

func (m Model) closeParams() {
	m.search.Close()
	m.mode.Close()
	m.sort.Close()
}

func (m Model) control(action string) tea.Cmd {
	controls := m.deps.Controls
	if controls == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()

		if action == "start" {
			res, err := controls.StartSession(ctx)
			return controlMsg{action: action, sessionID: res.SessionID, err: err}
		}
		return controlMsg{action: action, err: controls.StopSession(ctx)}
	}
}

func (m Model) loadHistory() tea.Cmd {
	store := m.deps.History
	if store == nil {
		return nil
	}
	q := history.Query{
		Search: strings.TrimSpace(m.search.Get()),
		Sort:   string(m.sort.Get()),
		Limit:  historyLimit,
	}
	return func() tea.Msg {
		ctx := context.Background()
		entries, err := store.Query(ctx, q)
		if err != nil {
			return historyMsg{err: err}
		}
		total, err := store.Count(ctx, q.Search)
		return historyMsg{entries: entries, total: total, err: err}
	}
}
