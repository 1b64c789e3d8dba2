package level

import "sync"

// Smoother keeps the recent history of perceptual levels for a meter.
type Smoother struct {
	mu   sync.Mutex
	ring *Ring
}

// NewSmoother returns a smoother pre-filled with RestingLevel.
func NewSmoother(capacity int) *Smoother {
	s := &Smoother{ring: NewRing(capacity)}
	s.ring.Fill(RestingLevel)
	return s
}

// Push records one raw sample and returns its perceptual level.
func (s *Smoother) Push(raw float64) float64 {
	v := Perceptual(raw)
	s.mu.Lock()
	s.ring.Push(v)
	s.mu.Unlock()
	return v
}

// Reset returns the meter to rest.
func (s *Smoother) Reset() {
	s.mu.Lock()
	s.ring.Fill(RestingLevel)
	s.mu.Unlock()
}

// Level is the most recent perceptual level.
func (s *Smoother) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.ring.Last(); ok {
		return v
	}
	return RestingLevel
}

func (s *Smoother) Levels() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Values()
}

func (s *Smoother) Cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Cap()
}
