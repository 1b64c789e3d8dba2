package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sjawhar/ghost-wispr-live/internal/history"
	"github.com/sjawhar/ghost-wispr-live/internal/level"
	"github.com/sjawhar/ghost-wispr-live/internal/session"
)

var meterGlyphs = []rune("▁▂▃▄▅▆▇█")

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	tabStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	activeTab    = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62")).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	finalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	interimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	meterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

var statusStyles = map[session.Status]lipgloss.Style{
	session.StatusIdle:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	session.StatusListening:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	session.StatusTranscribing: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	session.StatusStopped:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	session.StatusErrored:      errorStyle,
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.Path() == PathHistory {
		b.WriteString(m.renderHistory())
	} else {
		b.WriteString(m.renderLive())
	}

	if m.flash != "" {
		b.WriteString("\n" + dimStyle.Render(m.flash) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(m.help()))
	return b.String()
}

func (m Model) renderTabs() string {
	live, hist := tabStyle, tabStyle
	if m.Path() == PathHistory {
		hist = activeTab
	} else {
		live = activeTab
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		live.Render("Live"),
		hist.Render("History"),
		dimStyle.Render("  "+m.nav.Location().RequestURI()),
	)
}

func (m Model) renderLive() string {
	var lines []string

	status := string(m.snap.Status)
	if status == "" {
		status = string(session.StatusIdle)
	}
	style, ok := statusStyles[m.snap.Status]
	if !ok {
		style = dimStyle
	}
	head := style.Render("● " + strings.ToUpper(status))
	if m.snap.SessionID != "" {
		head += dimStyle.Render("  session " + m.snap.SessionID)
	}
	lines = append(lines, head, meterStyle.Render(renderMeter(m.frame.Levels)), "")

	if m.snap.Warning != nil {
		w := warnStyle.Render("⚠ " + m.snap.Warning.Message)
		if len(m.snap.Warning.Actions) > 0 {
			w += dimStyle.Render("  (" + strings.Join(m.snap.Warning.Actions, ", ") + ")")
		}
		lines = append(lines, w)
	}
	if m.snap.Notice != nil {
		lines = append(lines, errorStyle.Render("✗ "+m.snap.Notice.Message)+dimStyle.Render("  esc to dismiss"))
	}

	width := m.width - 2
	if width < 20 {
		width = 80
	}
	text := wrap(m.snap.FinalText, width)
	if m.snap.InterimText != "" {
		text = append(text, wrap(m.snap.InterimText, width)...)
	}
	if len(text) == 0 {
		lines = append(lines, dimStyle.Render("No transcript yet"))
	}
	finalLines := len(wrap(m.snap.FinalText, width))
	for i, line := range text {
		if i < finalLines {
			lines = append(lines, finalStyle.Render(line))
		} else {
			lines = append(lines, interimStyle.Render(line))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderHistory() string {
	var lines []string

	search := m.search.Get()
	prompt := "search: " + search
	if m.editing {
		prompt += "█"
	}
	lines = append(lines,
		titleStyle.Render(prompt),
		dimStyle.Render(fmt.Sprintf("%d entries · view %s · sort %s", m.total, m.mode.Get(), m.sort.Get())),
		"",
	)

	if m.histErr != nil {
		lines = append(lines, errorStyle.Render("history unavailable: "+m.histErr.Error()))
		return strings.Join(lines, "\n") + "\n"
	}
	if len(m.entries) == 0 {
		lines = append(lines, dimStyle.Render("Nothing here yet"))
		return strings.Join(lines, "\n") + "\n"
	}

	if m.mode.Get() == ViewGrid {
		lines = append(lines, m.renderGrid())
	} else {
		for _, e := range m.entries {
			lines = append(lines, renderRow(e))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func renderRow(e history.Entry) string {
	title := e.Title
	if title == "" {
		title = e.ID
	}
	return fmt.Sprintf("%s  %s  %s",
		dimStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04")),
		titleStyle.Render(title),
		dimStyle.Render(formatDuration(e.Duration)),
	)
}

func (m Model) renderGrid() string {
	const perRow = 3
	cellWidth := 24
	if m.width > 0 {
		cellWidth = max(m.width/perRow-4, 12)
	}

	var rows []string
	for i := 0; i < len(m.entries); i += perRow {
		var cells []string
		for _, e := range m.entries[i:min(i+perRow, len(m.entries))] {
			title := e.Title
			if title == "" {
				title = e.ID
			}
			body := titleStyle.Render(truncate(title, cellWidth)) + "\n" +
				dimStyle.Render(e.CreatedAt.Local().Format("Jan 2 15:04")+" · "+formatDuration(e.Duration))
			cells = append(cells, cardStyle.Width(cellWidth).Render(body))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) help() string {
	if m.editing {
		return "type to search · enter done"
	}
	keys := []string{"s start", "x stop", "tab page"}
	if m.Path() == PathHistory {
		keys = append([]string{"/ search", "v view", "o sort"}, keys...)
	}
	if m.nav.CanBack() {
		keys = append(keys, "[ back")
	}
	if m.nav.CanForward() {
		keys = append(keys, "] forward")
	}
	return strings.Join(append(keys, "q quit"), " · ")
}

// renderMeter draws one glyph per level, scaled from the resting level to 1.
func renderMeter(levels []float64) string {
	if len(levels) == 0 {
		return ""
	}
	top := len(meterGlyphs) - 1
	out := make([]rune, len(levels))
	for i, v := range levels {
		idx := int((v-level.RestingLevel)/(1-level.RestingLevel)*float64(top) + 0.5)
		out[i] = meterGlyphs[min(max(idx, 0), top)]
	}
	return string(out)
}

func formatDuration(seconds float64) string {
	s := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len([]rune(line))+1+len([]rune(w)) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
