// Package stats computes the global column means and covariance of a
// row-partitioned dataset.
//
// Each rank folds its shards into a local column-sum vector and Gram matrix,
// then all ranks combine both in a single all-reduce over one concatenated
// buffer. That all-reduce is the only cross-rank synchronization point of a
// covariance-path fit; every rank must reach it or the operation blocks until
// its context expires. Accumulation happens in float64 whatever the shard
// element type.
package stats

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mnmg/pcago/comm"
	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/partition"
	"github.com/mnmg/pcago/resource"
)

// ErrInsufficientRows is returned when the dataset holds fewer than two rows;
// the unbiased covariance divides by n-1.
var ErrInsufficientRows = errors.New("need at least two rows to estimate covariance")

// Moments holds the globally reduced first and second moments. Every rank
// obtains the same values.
type Moments struct {
	Mu        []float64
	Cov       *mat.SymDense
	TotalRows int
}

// ColumnMoments reduces column sums and the Gram matrix across all ranks in
// one collective and derives the global mean vector and unbiased covariance.
// Shards must have been validated against desc beforehand.
func ColumnMoments[T core.Float](ctx context.Context, c comm.Communicator, desc *partition.Descriptor, shards []core.Shard[T], ctrl *resource.Controller) (*Moments, error) {
	d := desc.Cols()
	n := desc.TotalRows()

	if n < 2 {
		return nil, fmt.Errorf("%w: descriptor covers %d", ErrInsufficientRows, n)
	}

	bufLen := d + d*d
	bufBytes := int64(8 * bufLen)

	if err := ctrl.AcquireStaging(ctx, bufBytes); err != nil {
		return nil, fmt.Errorf("stage moments buffer: %w", err)
	}
	defer ctrl.ReleaseStaging(bufBytes)

	buf := make([]float64, bufLen)
	sums := buf[:d]
	gram := buf[d:]

	// Upper triangle only; the lower half stays zero through the reduce and
	// is mirrored into the SymDense afterwards.
	for _, s := range shards {
		for i := 0; i < s.Rows; i++ {
			row := s.Row(i, d)
			for j, vj := range row {
				x := float64(vj)
				sums[j] += x

				g := gram[j*d:]
				for k := j; k < d; k++ {
					g[k] += x * float64(row[k])
				}
			}
		}
	}

	if err := ctrl.WaitInterconnect(ctx, 8*bufLen); err != nil {
		return nil, fmt.Errorf("meter moments payload: %w", err)
	}

	if err := c.AllReduceSum(ctx, buf); err != nil {
		return nil, fmt.Errorf("all-reduce column moments: %w", err)
	}

	mu := make([]float64, d)
	for j := range mu {
		mu[j] = sums[j] / float64(n)
	}

	cov := mat.NewSymDense(d, nil)
	inv := 1.0 / float64(n-1)

	for j := 0; j < d; j++ {
		for k := j; k < d; k++ {
			cov.SetSym(j, k, (gram[j*d+k]-float64(n)*mu[j]*mu[k])*inv)
		}
	}

	return &Moments{Mu: mu, Cov: cov, TotalRows: n}, nil
}

// ColumnMeans reduces only the column sums and returns the global mean
// vector. The QR solver uses it to center shards without ever forming the
// covariance.
func ColumnMeans[T core.Float](ctx context.Context, c comm.Communicator, desc *partition.Descriptor, shards []core.Shard[T], ctrl *resource.Controller) ([]float64, error) {
	d := desc.Cols()
	n := desc.TotalRows()

	bufBytes := int64(8 * d)

	if err := ctrl.AcquireStaging(ctx, bufBytes); err != nil {
		return nil, fmt.Errorf("stage means buffer: %w", err)
	}
	defer ctrl.ReleaseStaging(bufBytes)

	sums := make([]float64, d)

	for _, s := range shards {
		for i := 0; i < s.Rows; i++ {
			row := s.Row(i, d)
			for j, vj := range row {
				sums[j] += float64(vj)
			}
		}
	}

	if err := ctrl.WaitInterconnect(ctx, 8*d); err != nil {
		return nil, fmt.Errorf("meter means payload: %w", err)
	}

	if err := c.AllReduceSum(ctx, sums); err != nil {
		return nil, fmt.Errorf("all-reduce column means: %w", err)
	}

	for j := range sums {
		sums[j] /= float64(n)
	}

	return sums, nil
}
