package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/observability"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

const writeTimeout = 2 * time.Second

// State is the connection lifecycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

type Options struct {
	URL     string
	Dialer  Dialer
	Backoff Backoff
	// MaxAttempts bounds consecutive reconnects; 0 means unbounded.
	MaxAttempts int
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
}

// Manager owns exactly one live websocket at a time and transparently replaces
// it after drops. Inbound frames are decoded and handed to the OnMessage
// callback on the read goroutine, in arrival order.
type Manager struct {
	url         string
	dialer      Dialer
	backoff     Backoff
	maxAttempts int
	log         zerolog.Logger
	metrics     *observability.Metrics

	mu            sync.Mutex
	state         State
	conn          Conn
	attempt       int
	lastErr       error
	autoReconnect bool
	started       bool
	onMessage     func(protocol.Message)
	onState       func(State)

	writeMu sync.Mutex

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

func New(opts Options) *Manager {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewWSDialer("")
	}
	return &Manager{
		url:           opts.URL,
		dialer:        dialer,
		backoff:       opts.Backoff.withDefaults(),
		maxAttempts:   opts.MaxAttempts,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		autoReconnect: true,
		closing:       make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (m *Manager) OnMessage(callback func(protocol.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = callback
}

func (m *Manager) OnStateChange(callback func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = callback
}

// Start launches the connect loop. It returns immediately; calling it twice is
// a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = m.Close()
		case <-m.done:
		}
	}()
	go m.run(ctx)
}

// Close disables auto-reconnect and shuts the current socket. It does not wait
// for the loop to exit, so it is safe to call from a message handler; use Done
// to wait.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.autoReconnect = false
		conn := m.conn
		started := m.started
		m.started = true
		m.mu.Unlock()

		close(m.closing)
		if conn != nil {
			if cc, ok := conn.(controlWriter); ok {
				_ = cc.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
			}
			err = conn.Close()
		}
		if !started {
			close(m.done)
		}
	})
	return err
}

// controlWriter is implemented by *websocket.Conn; WriteControl may run
// concurrently with WriteMessage.
type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// Done is closed once the connect loop has exited for good.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Send writes v while the socket is open and silently drops it otherwise.
// There is no queue and no retry.
func (m *Manager) Send(v any) {
	payload, msgType, err := encodeOutbound(v)
	if err != nil {
		m.log.Warn().Err(err).Msg("outbound encode failed")
		m.metrics.IncSendDropped()
		return
	}

	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		m.log.Debug().Str("type", msgType).Msg("send dropped: not connected")
		m.metrics.IncSendDropped()
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if wc, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// The read loop observes the broken socket and drives reconnect.
		m.log.Debug().Err(err).Str("type", msgType).Msg("send failed")
		m.metrics.IncSendDropped()
		return
	}
	m.metrics.IncMessage("out", msgType)
}

func encodeOutbound(v any) ([]byte, string, error) {
	switch val := v.(type) {
	case nil:
		return nil, "", errors.New("nothing to send")
	case protocol.Message:
		payload, err := protocol.Encode(val)
		return payload, string(val.Kind()), err
	case []byte:
		return val, "raw", nil
	case string:
		return []byte(val), "raw", nil
	default:
		payload, err := json.Marshal(val)
		if err != nil {
			return nil, "", fmt.Errorf("marshal outbound: %w", err)
		}
		return payload, "json", nil
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer m.setState(StateClosed)

	for {
		if m.stopped(ctx) {
			return
		}

		m.setState(StateConnecting)
		conn, err := m.dialer.Dial(ctx, m.url)
		if err != nil {
			m.metrics.IncDialFailure()
			m.recordErr(err)
			m.log.Warn().Err(err).Int("attempt", m.Attempt()).Msg("websocket dial failed")
			m.setState(StateClosed)
			if !m.waitReconnect(ctx) {
				return
			}
			continue
		}

		if !m.opened(conn) {
			_ = conn.Close()
			return
		}

		err = m.readLoop(conn)
		m.closed(conn, err)

		if !m.waitReconnect(ctx) {
			return
		}
	}
}

func (m *Manager) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-m.closing:
		return true
	default:
		return false
	}
}

// opened installs conn unless Close raced with the dial.
func (m *Manager) opened(conn Conn) bool {
	m.mu.Lock()
	if !m.autoReconnect {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.attempt = 0
	m.lastErr = nil
	m.mu.Unlock()

	m.log.Info().Str("url", m.url).Msg("websocket connected")
	m.setState(StateOpen)
	return true
}

func (m *Manager) closed(conn Conn, err error) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	closing := !m.autoReconnect
	m.mu.Unlock()
	_ = conn.Close()

	switch {
	case closing:
		m.log.Info().Msg("websocket closed")
	case err == nil || isNormalClose(err):
		m.recordErr(err)
		m.log.Info().Msg("websocket closed by server")
	default:
		m.recordErr(err)
		m.log.Warn().Err(err).Msg("websocket dropped")
	}
	m.setState(StateClosed)
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := protocol.Decode(payload)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, protocol.ErrUnknownType) {
				reason = "unknown_type"
			}
			m.metrics.IncDecodeError(reason)
			m.log.Debug().Err(err).Int("bytes", len(payload)).Msg("dropping inbound frame")
			continue
		}
		m.metrics.IncMessage("in", string(msg.Kind()))

		m.mu.Lock()
		callback := m.onMessage
		m.mu.Unlock()
		if callback != nil {
			callback(msg)
		}
	}
}

// waitReconnect sleeps for the next backoff delay and reports whether the loop
// should dial again.
func (m *Manager) waitReconnect(ctx context.Context) bool {
	m.mu.Lock()
	if !m.autoReconnect || (m.maxAttempts > 0 && m.attempt >= m.maxAttempts) {
		exhausted := m.autoReconnect
		attempt := m.attempt
		m.mu.Unlock()
		if exhausted {
			m.log.Error().Int("attempts", attempt).Msg("giving up on websocket reconnect")
		}
		return false
	}
	delay := m.backoff.Delay(m.attempt)
	m.attempt++
	attempt := m.attempt
	m.mu.Unlock()

	m.metrics.IncReconnect()
	m.log.Info().Dur("delay", delay).Int("attempt", attempt).Msg("scheduling websocket reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-m.closing:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) recordErr(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	callback := m.onState
	m.mu.Unlock()

	m.metrics.SetConnectionState(int(state))
	if callback != nil {
		callback(state)
	}
}
