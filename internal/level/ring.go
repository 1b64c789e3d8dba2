package level

// Ring is a fixed-capacity FIFO of float64 values. Pushing into a full ring
// evicts the oldest value. Ring is not safe for concurrent use.
type Ring struct {
	buf   []float64
	start int
	size  int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]float64, capacity)}
}

func (r *Ring) Push(v float64) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Fill replaces the contents with Cap copies of v.
func (r *Ring) Fill(v float64) {
	for i := range r.buf {
		r.buf[i] = v
	}
	r.start = 0
	r.size = len(r.buf)
}

// Values returns a copy ordered oldest to newest.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.size)
	for i := range r.size {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Last returns the newest value, or false when empty.
func (r *Ring) Last() (float64, bool) {
	if r.size == 0 {
		return 0, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

func (r *Ring) Len() int { return r.size }
func (r *Ring) Cap() int { return len(r.buf) }
