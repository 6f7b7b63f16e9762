package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/partition"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
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

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
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

// NormFloat64 returns a standard normal pseudo-random number.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// FillGaussian fills dst with standard normal values.
// Locks only once per call (preferred over calling NormFloat64 in a loop).
func (r *RNG) FillGaussian(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.NormFloat64()
	}
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float64()
	}
}

// GaussianRows generates a row-major rows x cols block with independent
// N(0,1) entries. All columns carry the same variance, so the resulting
// spectrum is flat.
func GaussianRows(r *RNG, rows, cols int) []float64 {
	data := make([]float64, rows*cols)
	r.FillGaussian(data)
	return data
}

// ScaledGaussianRows generates Gaussian rows where column j is scaled by
// j+1, giving a strictly ordered spectrum with axis-aligned components.
func ScaledGaussianRows(r *RNG, rows, cols int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = r.rand.NormFloat64() * float64(j+1)
		}
	}
	return data
}

// LowRankRows generates rows concentrated along two fixed directions plus
// an isotropic noise tail. The strong direction carries weight 5, the weak
// one 2, so the top of the spectrum is well separated; noise sets the
// standard deviation of the tail.
func LowRankRows(r *RNG, rows, cols int, noise float64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		a := r.rand.NormFloat64() * 5
		b := r.rand.NormFloat64() * 2
		for j := 0; j < cols; j++ {
			data[i*cols+j] = a*math.Sin(float64(j+1)) + b*math.Cos(float64(2*j+1)) + r.rand.NormFloat64()*noise
		}
	}
	return data
}

// Describe builds a descriptor assigning split[rank] rows to each rank,
// in rank order.
func Describe(split []int, cols int) (*partition.Descriptor, error) {
	pairs := make([]partition.RankSize, len(split))
	for rank, rows := range split {
		pairs[rank] = partition.RankSize{Rank: rank, Rows: rows}
	}
	return partition.NewDescriptor(pairs, cols)
}

// SplitShards cuts a global row-major block into one shard per rank,
// aliasing the input. The split must sum to the block's row count.
func SplitShards[T core.Float](data []T, split []int, cols int) [][]core.Shard[T] {
	byRank := make([][]core.Shard[T], len(split))
	offset := 0
	for rank, rows := range split {
		byRank[rank] = []core.Shard[T]{{
			Data: data[offset*cols : (offset+rows)*cols],
			Rows: rows,
		}}
		offset += rows
	}
	return byRank
}

// Narrow converts a float64 block to the target element type.
func Narrow[T core.Float](src []float64) []T {
	dst := make([]T, len(src))
	for i, v := range src {
		dst[i] = T(v)
	}
	return dst
}
