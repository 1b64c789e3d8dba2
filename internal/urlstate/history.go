package urlstate

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
)

var ErrInvalidURL = errors.New("invalid location")

// Navigator is the navigation surface a Param binds to.
type Navigator interface {
	Location() *url.URL
	// Entry identifies the current entry. It changes on every navigation.
	Entry() uint64
	// Update rewrites entry in place and reports whether it was still current.
	Update(entry uint64, fn func(*url.URL)) bool
	OnPopState(func(*url.URL)) func()
}

type popListener struct {
	fn func(*url.URL)
}

// History is an in-memory navigation stack with browser semantics: Push adds
// an entry and drops any forward entries, Update rewrites the current entry,
// and only Back and Forward notify popstate listeners.
type History struct {
	mu        sync.Mutex
	entries   []*url.URL
	ids       []uint64
	lastID    uint64
	index     int
	listeners []*popListener
}

var _ Navigator = (*History)(nil)

func NewHistory(raw string) (*History, error) {
	u, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &History{entries: []*url.URL{u}, ids: []uint64{1}, lastID: 1}, nil
}

func parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func clone(u *url.URL) *url.URL {
	c := *u
	return &c
}

// Location returns a copy of the current entry.
func (h *History) Location() *url.URL {
	h.mu.Lock()
	defer h.mu.Unlock()
	return clone(h.entries[h.index])
}

func (h *History) Push(raw string) error {
	u, err := parse(raw)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	h.entries = append(h.entries[:h.index+1], u)
	h.ids = append(h.ids[:h.index+1], h.lastID)
	h.index++
	return nil
}

func (h *History) Entry() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ids[h.index]
}

// Update applies fn to a copy of the current entry and stores the result, as
// one step. It does nothing once entry is no longer current.
func (h *History) Update(entry uint64, fn func(*url.URL)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ids[h.index] != entry {
		return false
	}
	u := clone(h.entries[h.index])
	fn(u)
	h.entries[h.index] = u
	return true
}

// Back moves one entry back and reports whether it moved.
func (h *History) Back() bool {
	return h.step(-1)
}

func (h *History) Forward() bool {
	return h.step(1)
}

func (h *History) CanBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index > 0
}

func (h *History) CanForward() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index < len(h.entries)-1
}

func (h *History) step(delta int) bool {
	h.mu.Lock()
	next := h.index + delta
	if next < 0 || next >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.index = next
	loc := clone(h.entries[next])
	listeners := h.listeners
	h.mu.Unlock()

	for _, l := range listeners {
		l.fn(clone(loc))
	}
	return true
}

// OnPopState registers fn for Back/Forward navigation and returns an
// unsubscribe func.
func (h *History) OnPopState(fn func(*url.URL)) func() {
	l := &popListener{fn: fn}

	h.mu.Lock()
	h.listeners = append(append([]*popListener(nil), h.listeners...), l)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			next := make([]*popListener, 0, len(h.listeners))
			for _, existing := range h.listeners {
				if existing != l {
					next = append(next, existing)
				}
			}
			h.listeners = next
		})
	}
}
