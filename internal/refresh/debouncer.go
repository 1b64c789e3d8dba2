package refresh

import (
	"slices"
	"sync"
	"time"

	"github.com/sjawhar/ghost-wispr-live/internal/hub"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

const DefaultWindow = 250 * time.Millisecond

// Debouncer collapses a burst of notifications into one call to fn, made one
// window after the first notification of the burst. Notifications that arrive
// while a call is pending do not extend it.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{window: window, fn: fn}
}

func (d *Debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.timer != nil {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		// Stop may have raced with the timer firing.
		if d.timer != timer {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		fn := d.fn
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
	d.timer = timer
}

// Pending reports whether a call is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any armed call. Later notifications are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Handler returns a hub handler that notifies on the given message types.
func (d *Debouncer) Handler(types ...protocol.Type) hub.Handler {
	return func(msg protocol.Message) error {
		if slices.Contains(types, msg.Kind()) {
			d.Notify()
		}
		return nil
	}
}
