package level

import (
	"context"
	"time"
)

// Source is anything that can report the current meter state.
type Source interface {
	Level() float64
	Levels() []float64
}

type Frame struct {
	Level  float64
	Levels []float64
	At     time.Time
}

// Sampler reads a Source on a fixed cadence so rendering cost does not scale
// with the inbound message rate.
type Sampler struct {
	source   Source
	interval time.Duration
}

// NewSampler clamps hz into (0, MaxFrameRate].
func NewSampler(source Source, hz int) *Sampler {
	if hz <= 0 || hz > MaxFrameRate {
		hz = MaxFrameRate
	}
	return &Sampler{source: source, interval: time.Second / time.Duration(hz)}
}

func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Run emits one frame per tick until ctx is done.
func (s *Sampler) Run(ctx context.Context, emit func(Frame)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			emit(Frame{Level: s.source.Level(), Levels: s.source.Levels(), At: now})
		}
	}
}
