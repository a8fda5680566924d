package reading

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"
)

// Source yields values in [0,1).
type Source interface {
	Float64() float64
}

// SourceFunc adapts a function to Source.
type SourceFunc func() float64

// Float64 implements Source.
func (f SourceFunc) Float64() float64 { return f() }

// CryptoSource draws from the operating system's CSPRNG.
type CryptoSource struct{}

// Float64 implements Source.
func (CryptoSource) Float64() float64 {
	var b [8]byte
	_, _ = crand.Read(b[:])
	return float64(binary.LittleEndian.Uint64(b[:])>>11) / (1 << 53)
}

// reseedEvery bounds how many draws a JitterSource takes from one seed.
const reseedEvery = 64

// JitterSource is a fast PCG generator that periodically reseeds itself
// from scheduler timing jitter.
type JitterSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	draws int
}

// NewJitterSource returns a JitterSource seeded from current timing jitter.
func NewJitterSource() *JitterSource {
	return &JitterSource{}
}

// Float64 implements Source.
func (j *JitterSource) Float64() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.rng == nil || j.draws%reseedEvery == 0 {
		j.rng = rand.New(rand.NewPCG(timingJitter(), uint64(time.Now().UnixNano())))
	}
	j.draws++
	return j.rng.Float64()
}

// timingJitter folds the nanosecond cost of a few scheduler yields into a seed.
func timingJitter() uint64 {
	var acc uint64
	for i := 0; i < 8; i++ {
		t0 := time.Now()
		runtime.Gosched()
		acc = acc<<7 ^ acc>>57 ^ uint64(time.Since(t0).Nanoseconds())
	}
	return acc
}
