package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
	"github.com/sjawhar/ghost-wispr-live/internal/transport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestClientSharesOneConnectionAcrossSubscribers(t *testing.T) {
	var mu sync.Mutex
	var connections int
	var gotClientID, gotAuth string

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connections++
		gotClientID = r.URL.Query().Get("client")
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session_started","sessionId":"s1"}`))
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{
		URL:     srv.URL,
		Token:   "secret",
		Backoff: transport.Backoff{Base: 10 * time.Millisecond, Factor: 1.5, Max: 50 * time.Millisecond},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var first, second []string
	var subMu sync.Mutex
	c.Subscribe(func(m protocol.Message) error {
		subMu.Lock()
		defer subMu.Unlock()
		first = append(first, m.Session())
		return nil
	})
	unsubscribe := c.Subscribe(func(m protocol.Message) error {
		subMu.Lock()
		defer subMu.Unlock()
		second = append(second, m.Session())
		return nil
	})

	c.Start(context.Background())
	t.Cleanup(func() { _ = c.Close() })

	waitFor(t, "both subscribers", func() bool {
		subMu.Lock()
		defer subMu.Unlock()
		return len(first) == 1 && len(second) == 1
	})
	unsubscribe()

	if !c.IsConnected() {
		t.Fatal("expected connected client")
	}

	mu.Lock()
	defer mu.Unlock()
	if connections != 1 {
		t.Fatalf("expected exactly one shared connection, got %d", connections)
	}
	if gotClientID != c.ID() {
		t.Fatalf("expected client id %q on ws url, got %q", c.ID(), gotClientID)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
}

func TestClientRejectsBadURL(t *testing.T) {
	if _, err := New(Options{URL: "ftp://example.com", Logger: zerolog.Nop()}); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return websocket.TextMessage, f, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	conn *fakeConn
}

func (d *fakeDialer) Dial(context.Context, string) (transport.Conn, error) {
	return d.conn, nil
}

func TestClientWithFakeDialer(t *testing.T) {
	conn := &fakeConn{frames: make(chan []byte, 4), closed: make(chan struct{})}
	c, err := New(Options{URL: "http://wispr.local", Dialer: &fakeDialer{conn: conn}, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ch, unsubscribe := c.SubscribeChan(4)
	defer unsubscribe()

	c.Start(context.Background())
	conn.frames <- []byte(`{"type":"audio_level","level":0.5}`)

	select {
	case msg := <-ch:
		if msg.Kind() != protocol.TypeAudioLevel {
			t.Fatalf("expected audio_level, got %s", msg.Kind())
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected client to stop")
	}
}
