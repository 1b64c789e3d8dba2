package hub

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/observability"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

// Handler consumes one inbound message. A returned error is logged and does
// not affect delivery to other handlers.
type Handler func(protocol.Message) error

// Sender is the outbound half of the transport.
type Sender interface {
	Send(v any)
	IsConnected() bool
}

type subscription struct {
	id      string
	handler Handler
	active  atomic.Bool
}

// Hub fans inbound messages out to every registered handler. Subscribing and
// unsubscribing are independent of the connection's state.
type Hub struct {
	sender  Sender
	log     zerolog.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	subs []*subscription
}

func New(sender Sender, logger zerolog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{sender: sender, log: logger, metrics: metrics}
}

// Subscribe registers handler and returns its unsubscribe func. Each call
// creates a distinct subscription even for the same handler value.
func (h *Hub) Subscribe(handler Handler) func() {
	sub := &subscription{id: uuid.NewString(), handler: handler}
	sub.active.Store(true)

	h.mu.Lock()
	next := make([]*subscription, 0, len(h.subs)+1)
	next = append(next, h.subs...)
	h.subs = append(next, sub)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(sub) })
	}
}

func (h *Hub) remove(sub *subscription) {
	sub.active.Store(false)

	h.mu.Lock()
	defer h.mu.Unlock()
	next := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s != sub {
			next = append(next, s)
		}
	}
	h.subs = next
}

// SubscribeChan delivers messages on a buffered channel. When the buffer is
// full the message is dropped for this subscriber only. The returned func
// unsubscribes and closes the channel.
func (h *Hub) SubscribeChan(size int) (<-chan protocol.Message, func()) {
	if size <= 0 {
		size = 64
	}
	ch := make(chan protocol.Message, size)

	var mu sync.Mutex
	closed := false
	unsubscribe := h.Subscribe(func(msg protocol.Message) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		select {
		case ch <- msg:
		default:
			h.log.Debug().Str("type", string(msg.Kind())).Msg("channel subscriber full, dropping message")
		}
		return nil
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// Dispatch delivers msg to a snapshot of the current subscribers. Handlers
// removed after the snapshot was taken are skipped.
func (h *Hub) Dispatch(msg protocol.Message) {
	h.mu.Lock()
	snapshot := h.subs
	h.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		h.invoke(sub, msg)
	}
}

func (h *Hub) invoke(sub *subscription, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.metrics.IncHandlerFailure("panic")
			h.log.Error().
				Str("subscription", sub.id).
				Str("type", string(msg.Kind())).
				Str("panic", fmt.Sprint(r)).
				Msg("subscriber panicked")
		}
	}()

	if err := sub.handler(msg); err != nil {
		h.metrics.IncHandlerFailure("error")
		h.log.Error().
			Err(err).
			Str("subscription", sub.id).
			Str("type", string(msg.Kind())).
			Msg("subscriber failed")
	}
}

// Send proxies to the transport; it is dropped when not connected.
func (h *Hub) Send(v any) {
	if h.sender == nil {
		return
	}
	h.sender.Send(v)
}

func (h *Hub) IsConnected() bool {
	return h.sender != nil && h.sender.IsConnected()
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
