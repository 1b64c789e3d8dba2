package urlstate

import (
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"
)

func newHistory(t *testing.T, raw string) *History {
	t.Helper()
	h, err := NewHistory(raw)
	if err != nil {
		t.Fatalf("NewHistory(%q) failed: %v", raw, err)
	}
	return h
}

func TestHistoryPushBackForward(t *testing.T) {
	h := newHistory(t, "/live")

	var pops []string
	h.OnPopState(func(u *url.URL) { pops = append(pops, u.String()) })

	if err := h.Push("/history?q=abc"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(pops) != 0 {
		t.Fatalf("Push must not fire popstate, got %v", pops)
	}

	if !h.Back() {
		t.Fatal("expected Back to move")
	}
	if h.Location().Path != "/live" {
		t.Fatalf("expected /live, got %s", h.Location())
	}
	if h.Back() {
		t.Fatal("expected Back at start to fail")
	}
	if !h.Forward() {
		t.Fatal("expected Forward to move")
	}
	if got := h.Location().Query().Get("q"); got != "abc" {
		t.Fatalf("expected q=abc, got %q", got)
	}

	if len(pops) != 2 || pops[0] != "/live" || pops[1] != "/history?q=abc" {
		t.Fatalf("unexpected popstate sequence %v", pops)
	}
}

func TestHistoryPushDropsForwardEntries(t *testing.T) {
	h := newHistory(t, "/a")
	_ = h.Push("/b")
	h.Back()
	_ = h.Push("/c")

	if h.CanForward() {
		t.Fatal("expected forward entries dropped")
	}
	h.Back()
	if h.Location().Path != "/a" {
		t.Fatalf("expected /a, got %s", h.Location())
	}
}

func TestHistoryRejectsInvalidURL(t *testing.T) {
	if _, err := NewHistory("%zz"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	h := newHistory(t, "/")
	if err := h.Push("%zz"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestParamSurvivesPopStateRoundTrip(t *testing.T) {
	h := newHistory(t, "/history")
	search := Bind(h, "q", "", String())

	search.Set("abc")
	if got := h.Location().Query().Get("q"); got != "abc" {
		t.Fatalf("expected synchronous write q=abc, got %q", got)
	}

	_ = h.Push("/live")
	h.Back()
	if got := search.Get(); got != "abc" {
		t.Fatalf("expected abc restored after popstate, got %q", got)
	}
}

func TestParamDefaultRemovesKey(t *testing.T) {
	h := newHistory(t, "/history?q=old&view=grid")
	view := Bind(h, "view", "list", Enum("list", "grid"))

	if view.Get() != "grid" {
		t.Fatalf("expected grid from URL, got %q", view.Get())
	}

	view.Set("list")
	loc := h.Location()
	if _, ok := loc.Query()["view"]; ok {
		t.Fatalf("expected view removed at default, got %s", loc)
	}
	if loc.Query().Get("q") != "old" {
		t.Fatalf("expected other params untouched, got %s", loc)
	}
}

func TestParamInvalidValueFallsBackToDefault(t *testing.T) {
	h := newHistory(t, "/history?sort=sideways&page=x")
	sort := Bind(h, "sort", "newest", Enum("newest", "oldest"))
	page := Bind(h, "page", 1, Int())

	if sort.Get() != "newest" {
		t.Fatalf("expected default sort, got %q", sort.Get())
	}
	if page.Get() != 1 {
		t.Fatalf("expected default page, got %d", page.Get())
	}

	page.Set(3)
	if got := h.Location().Query().Get("page"); got != "3" {
		t.Fatalf("expected page=3, got %q", got)
	}
}

func TestParamDelayedWriteCoalesces(t *testing.T) {
	h := newHistory(t, "/history")
	search := Bind(h, "q", "", String(), WithDelay(30*time.Millisecond))

	search.Set("a")
	search.Set("ab")
	search.Set("abc")

	if search.Get() != "abc" {
		t.Fatalf("expected value updated immediately, got %q", search.Get())
	}
	if _, ok := h.Location().Query()["q"]; ok {
		t.Fatal("expected URL write to be deferred")
	}

	time.Sleep(100 * time.Millisecond)
	if got := h.Location().Query().Get("q"); got != "abc" {
		t.Fatalf("expected deferred write q=abc, got %q", got)
	}
}

func TestParamPopStateCancelsPendingWrite(t *testing.T) {
	h := newHistory(t, "/history?q=first")
	_ = h.Push("/history?q=second")
	search := Bind(h, "q", "", String(), WithDelay(30*time.Millisecond))

	var changes []string
	search.OnChange(func(v string) { changes = append(changes, v) })

	search.Set("typing")
	h.Back()

	if search.Get() != "first" {
		t.Fatalf("expected popstate value, got %q", search.Get())
	}
	time.Sleep(80 * time.Millisecond)
	if got := h.Location().Query().Get("q"); got != "first" {
		t.Fatalf("expected pending write cancelled, got q=%q", got)
	}
	if len(changes) != 1 || changes[0] != "first" {
		t.Fatalf("expected one change notification, got %v", changes)
	}
}

func TestParamFlushAndClose(t *testing.T) {
	h := newHistory(t, "/history")
	search := Bind(h, "q", "", String(), WithDelay(time.Hour))

	search.Set("now")
	if !search.Pending() {
		t.Fatal("expected pending write")
	}
	search.Flush()
	if got := h.Location().Query().Get("q"); got != "now" {
		t.Fatalf("expected flushed write, got %q", got)
	}

	search.Set("later")
	search.Close()
	search.Flush()
	if got := h.Location().Query().Get("q"); got != "now" {
		t.Fatalf("expected Close to drop pending write, got %q", got)
	}

	_ = h.Push("/history?q=other")
	h.Back()
	if search.Get() != "later" {
		t.Fatalf("expected closed param to ignore popstate, got %q", search.Get())
	}
}

// gatedNav holds the first Update until release is closed.
type gatedNav struct {
	*History
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedNav) Update(entry uint64, fn func(*url.URL)) bool {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.History.Update(entry, fn)
}

func TestParamDelayedWriteInFlightDuringNavigation(t *testing.T) {
	h := newHistory(t, "/history")
	nav := &gatedNav{History: h, entered: make(chan struct{}), release: make(chan struct{})}
	search := Bind(nav, "q", "", String(), WithDelay(10*time.Millisecond))
	defer search.Close()

	search.Set("abc")
	select {
	case <-nav.entered:
	case <-time.After(time.Second):
		t.Fatal("expected the delayed write to start")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		search.Flush()
		_ = h.Push("/live")
	}()

	time.Sleep(20 * time.Millisecond)
	close(nav.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Flush did not return")
	}

	if got := h.Location().String(); got != "/live" {
		t.Fatalf("expected pushed entry untouched, got %s", got)
	}
	h.Back()
	if got := h.Location().Query().Get("q"); got != "abc" {
		t.Fatalf("expected write on the entry it was made for, got q=%q", got)
	}
}

func TestParamWriteDroppedForStaleEntry(t *testing.T) {
	h := newHistory(t, "/history")
	search := Bind(h, "q", "", String(), WithDelay(20*time.Millisecond))
	defer search.Close()

	search.Set("abc")
	_ = h.Push("/live")
	time.Sleep(60 * time.Millisecond)

	if got := h.Location().String(); got != "/live" {
		t.Fatalf("expected current entry untouched, got %s", got)
	}
	h.Back()
	if h.Location().Query().Has("q") {
		t.Fatalf("expected no write after leaving the entry, got %s", h.Location())
	}
}

func TestHistoryUpdateRequiresCurrentEntry(t *testing.T) {
	h := newHistory(t, "/a")
	first := h.Entry()
	_ = h.Push("/b")
	if h.Entry() == first {
		t.Fatal("expected Push to change the entry id")
	}
	if h.Update(first, func(u *url.URL) { u.Path = "/x" }) {
		t.Fatal("expected Update on a stale entry to be refused")
	}
	h.Back()
	if !h.Update(first, func(u *url.URL) { u.RawQuery = "k=v" }) {
		t.Fatal("expected Update on the current entry to apply")
	}
	if got := h.Location().String(); got != "/a?k=v" {
		t.Fatalf("expected /a?k=v, got %s", got)
	}
}
