package urlstate

import (
	"net/url"
	"sync"
	"time"
)

type options struct {
	delay time.Duration
}

type Option func(*options)

// WithDelay defers URL writes until d has passed without another Set. Zero
// writes synchronously.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

// Param mirrors one value into one query parameter of a Navigator's current
// location.
type Param[T comparable] struct {
	nav   Navigator
	key   string
	def   T
	codec Codec[T]
	delay time.Duration

	// writeMu serializes URL writes so Flush returns only after any write
	// already in progress has landed.
	writeMu sync.Mutex

	mu       sync.Mutex
	value    T
	timer    *time.Timer
	pending  bool
	entry    uint64
	closed   bool
	onChange func(T)
	unsub    func()
}

// Bind reads key from nav's current location, falling back to def when the
// key is missing or does not decode, and re-reads it on every popstate.
func Bind[T comparable](nav Navigator, key string, def T, codec Codec[T], opts ...Option) *Param[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Param[T]{nav: nav, key: key, def: def, codec: codec, delay: o.delay}
	p.value = p.read(nav.Location())
	p.unsub = nav.OnPopState(p.popState)
	return p
}

func (p *Param[T]) read(u *url.URL) T {
	raw, ok := u.Query()[p.key]
	if !ok || len(raw) == 0 {
		return p.def
	}
	v, err := p.codec.Decode(raw[0])
	if err != nil {
		return p.def
	}
	return v
}

func (p *Param[T]) popState(u *url.URL) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.cancelLocked()
	next := p.read(u)
	changed := next != p.value
	p.value = next
	callback := p.onChange
	p.mu.Unlock()

	if changed && callback != nil {
		callback(next)
	}
}

func (p *Param[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// OnChange is called when popstate changes the value. Set does not trigger it.
func (p *Param[T]) OnChange(callback func(T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = callback
}

// Set updates the value now and the URL after the configured delay. The
// write targets the entry that is current at Set time.
func (p *Param[T]) Set(v T) {
	entry := p.nav.Entry()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.value = v

	if p.delay == 0 {
		p.mu.Unlock()
		p.writeMu.Lock()
		p.write(entry, v)
		p.writeMu.Unlock()
		return
	}

	p.pending = true
	p.entry = entry
	if p.timer != nil {
		p.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(p.delay, func() {
		p.writeMu.Lock()
		defer p.writeMu.Unlock()

		p.mu.Lock()
		if p.timer != timer || !p.pending {
			p.mu.Unlock()
			return
		}
		p.timer = nil
		p.pending = false
		value, target := p.value, p.entry
		p.mu.Unlock()
		p.write(target, value)
	})
	p.timer = timer
	p.mu.Unlock()
}

// Flush writes a pending value immediately.
func (p *Param[T]) Flush() {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return
	}
	p.cancelLocked()
	value, target := p.value, p.entry
	p.mu.Unlock()
	p.write(target, value)
}

func (p *Param[T]) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Close stops listening for popstate and drops any pending write.
func (p *Param[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelLocked()
	unsub := p.unsub
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (p *Param[T]) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = false
}

// write must be called with writeMu held. A write whose entry is no longer
// current is dropped.
func (p *Param[T]) write(entry uint64, v T) {
	encoded := p.codec.Encode(v)
	isDefault := encoded == p.codec.Encode(p.def)

	p.nav.Update(entry, func(u *url.URL) {
		q := u.Query()
		if isDefault {
			q.Del(p.key)
		} else {
			q.Set(p.key, encoded)
		}
		u.RawQuery = q.Encode()
	})
}
