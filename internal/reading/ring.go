package reading

// ring is a fixed-capacity buffer that drops the oldest element once full.
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) len() int { return r.size }

// last returns up to n newest elements, oldest first.
func (r *ring[T]) last(n int) []T {
	if n > r.size {
		n = r.size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+r.size-n+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) all() []T { return r.last(r.size) }

// setLast overwrites the newest element. It is a no-op on an empty ring.
func (r *ring[T]) setLast(v T) {
	if r.size == 0 {
		return
	}
	r.buf[(r.start+r.size-1)%len(r.buf)] = v
}
