package transport

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 1.5, Max: 30 * time.Second}

	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
	}
	for attempt, w := range want {
		if got := b.Delay(attempt); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := DefaultBackoff()

	if got := b.Delay(9); got != 30*time.Second {
		t.Fatalf("Delay(9) = %v, want 30s", got)
	}
	if got := b.Delay(10_000); got != 30*time.Second {
		t.Fatalf("Delay(10000) = %v, want 30s", got)
	}
}

func TestBackoffDefaultsZeroValue(t *testing.T) {
	var b Backoff
	if got := b.Delay(0); got != DefaultBaseDelay {
		t.Fatalf("Delay(0) on zero Backoff = %v, want %v", got, DefaultBaseDelay)
	}
	if got := b.Delay(-3); got != DefaultBaseDelay {
		t.Fatalf("Delay(-3) = %v, want %v", got, DefaultBaseDelay)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080/ws"},
		{in: "https://wispr.example.com/live", want: "wss://wispr.example.com/live"},
		{in: "ws://localhost:9000/ws", want: "ws://localhost:9000/ws"},
		{in: "ftp://example.com", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := NormalizeURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeURL(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeURL(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
