package refresh

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(40*time.Millisecond, func() { calls.Add(1) })

	for range 5 {
		d.Notify()
		time.Sleep(2 * time.Millisecond)
	}
	if !d.Pending() {
		t.Fatal("expected a pending call")
	}

	time.Sleep(120 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call for a burst, got %d", got)
	}
	if d.Pending() {
		t.Fatal("expected nothing pending after fire")
	}
}

func TestDebouncerSpacedNotificationsEachFire(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Notify()
	time.Sleep(80 * time.Millisecond)
	d.Notify()
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })

	d.Notify()
	d.Stop()
	d.Notify()

	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no call after Stop, got %d", got)
	}
}

func TestDebouncerDefaultWindow(t *testing.T) {
	d := NewDebouncer(0, nil)
	if d.window != DefaultWindow {
		t.Fatalf("expected default window %v, got %v", DefaultWindow, d.window)
	}
}

func TestDebouncerHandlerFiltersTypes(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })
	handle := d.Handler(protocol.TypeHistoryUpdated)

	_ = handle(&protocol.Transcript{Envelope: protocol.Envelope{Type: protocol.TypeTranscript}})
	if d.Pending() {
		t.Fatal("expected unrelated message to be ignored")
	}

	for range 3 {
		_ = handle(&protocol.HistoryUpdated{Envelope: protocol.Envelope{Type: protocol.TypeHistoryUpdated}})
	}
	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}
