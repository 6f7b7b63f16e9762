// Package project applies a fitted component basis to data shards: forward
// projection into component space and reconstruction back into feature space.
//
// Projection is embarrassingly parallel across rows, so shards are cut into
// row blocks and fanned out over a fixed worker pool. All arithmetic runs in
// float64 and narrows once per output element.
package project

import (
	"errors"
	"fmt"

	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/internal/floats"
)

var (
	// ErrBasisShape is returned when basis buffers disagree with the
	// declared component and feature counts.
	ErrBasisShape = errors.New("basis buffer shape mismatch")

	// ErrBufferShape is returned when a shard or output buffer does not
	// hold rows*width values.
	ErrBufferShape = errors.New("projection buffer shape mismatch")
)

// Basis is the fitted projection: k component rows over d features, the
// global column means, and optional per-component whitening scales.
type Basis struct {
	// Components holds k rows of d weights, row-major.
	Components []float64

	// Mu holds the d global column means subtracted before projection.
	Mu []float64

	// Scale holds k whitening divisors, sqrt of each component's explained
	// variance. Nil disables whitening. A zero scale maps its component to
	// zero instead of dividing by zero.
	Scale []float64

	k, d int
}

// NewBasis validates buffer shapes and returns the projection basis. The
// slices are retained, not copied.
func NewBasis(components, mu []float64, k, d int, scale []float64) (*Basis, error) {
	if k <= 0 || d <= 0 {
		return nil, fmt.Errorf("%w: %d components over %d features", ErrBasisShape, k, d)
	}
	if len(components) != k*d {
		return nil, fmt.Errorf("%w: components hold %d values, want %d", ErrBasisShape, len(components), k*d)
	}
	if len(mu) != d {
		return nil, fmt.Errorf("%w: mu holds %d values, want %d", ErrBasisShape, len(mu), d)
	}
	if scale != nil && len(scale) != k {
		return nil, fmt.Errorf("%w: scale holds %d values, want %d", ErrBasisShape, len(scale), k)
	}

	return &Basis{Components: components, Mu: mu, Scale: scale, k: k, d: d}, nil
}

// NComponents returns k.
func (b *Basis) NComponents() int { return b.k }

// NFeatures returns d.
func (b *Basis) NFeatures() int { return b.d }

// component returns row c of the basis.
func (b *Basis) component(c int) []float64 {
	return b.Components[c*b.d : (c+1)*b.d]
}

// Transform projects rows [from, to) of src into dst, which holds k values
// per source row. Bounds are the caller's responsibility; TransformShard
// validates them.
func Transform[T core.Float](b *Basis, src core.Shard[T], dst []T, from, to int) {
	scratch := make([]float64, b.d)

	for i := from; i < to; i++ {
		row := src.Row(i, b.d)
		for j := range scratch {
			scratch[j] = float64(row[j]) - b.Mu[j]
		}

		out := dst[i*b.k : (i+1)*b.k]
		for c := 0; c < b.k; c++ {
			v := floats.Dot(scratch, b.component(c))
			if b.Scale != nil {
				if s := b.Scale[c]; s > 0 {
					v /= s
				} else {
					v = 0
				}
			}
			out[c] = T(v)
		}
	}
}

// InverseTransform reconstructs rows [from, to) of the projected src into
// dst, which holds d values per source row. Whitening scales, when present,
// are multiplied back in before reconstruction.
func InverseTransform[T core.Float](b *Basis, src core.Shard[T], dst []T, from, to int) {
	scratch := make([]float64, b.d)

	for i := from; i < to; i++ {
		row := src.Row(i, b.k)

		copy(scratch, b.Mu)
		for c := 0; c < b.k; c++ {
			v := float64(row[c])
			if b.Scale != nil {
				v *= b.Scale[c]
			}
			floats.Axpy(v, b.component(c), scratch)
		}

		out := dst[i*b.d : (i+1)*b.d]
		for j, v := range scratch {
			out[j] = T(v)
		}
	}
}

// TransformShard validates shapes and projects one whole shard.
func TransformShard[T core.Float](b *Basis, src core.Shard[T], dst []T) error {
	if err := checkShard(src, b.d, "input"); err != nil {
		return err
	}
	if len(dst) != src.Rows*b.k {
		return fmt.Errorf("%w: output holds %d values, want %d", ErrBufferShape, len(dst), src.Rows*b.k)
	}

	Transform(b, src, dst, 0, src.Rows)

	return nil
}

// InverseTransformShard validates shapes and reconstructs one whole shard.
func InverseTransformShard[T core.Float](b *Basis, src core.Shard[T], dst []T) error {
	if err := checkShard(src, b.k, "input"); err != nil {
		return err
	}
	if len(dst) != src.Rows*b.d {
		return fmt.Errorf("%w: output holds %d values, want %d", ErrBufferShape, len(dst), src.Rows*b.d)
	}

	InverseTransform(b, src, dst, 0, src.Rows)

	return nil
}

func checkShard[T core.Float](s core.Shard[T], width int, what string) error {
	if s.Rows < 0 || len(s.Data) != s.Rows*width {
		return fmt.Errorf("%w: %s shard holds %d values for %d rows of %d", ErrBufferShape, what, len(s.Data), s.Rows, width)
	}
	return nil
}
