package transport

import (
	"math"
	"time"
)

const (
	DefaultBaseDelay = time.Second
	DefaultFactor    = 1.5
	DefaultMaxDelay  = 30 * time.Second
)

// Backoff computes reconnect delays as min(Base * Factor^attempt, Max).
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseDelay, Factor: DefaultFactor, Max: DefaultMaxDelay}
}

func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = DefaultBaseDelay
	}
	if b.Factor < 1 {
		b.Factor = DefaultFactor
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxDelay
	}
	return b
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if math.IsInf(d, 0) || d >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
