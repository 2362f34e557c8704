package testutil

import (
	"math"
	"math/rand"
	"sync"
)

// RNG is a seeded, thread-safe random source.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// UnitVector returns a random L2-normalized vector.
func (r *RNG) UnitVector(dim int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]float32, dim)
	var sum float64
	for i := range v {
		x := r.rand.NormFloat64()
		v[i] = float32(x)
		sum += x * x
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// UnitVectors returns num random L2-normalized vectors.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	out := make([][]float32, num)
	for i := range out {
		out[i] = r.UnitVector(dim)
	}
	return out
}

// Axis returns the unit vector along axis i.
func Axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i%dim] = 1
	return v
}

// Blend returns the normalized mix a*(1-w) + b*w.
func Blend(a, b []float32, w float32) []float32 {
	out := make([]float32, len(a))
	var sum float64
	for i := range a {
		out[i] = a[i]*(1-w) + b[i]*w
		sum += float64(out[i]) * float64(out[i])
	}
	if sum > 0 {
		inv := float32(1 / math.Sqrt(sum))
		for i := range out {
			out[i] *= inv
		}
	}
	return out
}
