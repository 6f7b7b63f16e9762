package solver

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mnmg/pcago/comm"
	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/partition"
	"github.com/mnmg/pcago/resource"
	"github.com/mnmg/pcago/stats"
)

// TSQR computes the spectrum without ever forming the covariance. Each rank
// centers its shards with the global mean mu and QR-factorizes them, the
// d x d R factors travel through one all-gather in rank order, and every rank
// reads the spectrum off a local SVD of the stacked factors. The stack has
// the same Gram matrix as the centered dataset, so its singular values and
// right singular vectors are those of the data.
//
// Shards must have been validated against desc, and mu must be the global
// column means over desc.
func TSQR[T core.Float](ctx context.Context, c comm.Communicator, desc *partition.Descriptor, shards []core.Shard[T], mu []float64, ctrl *resource.Controller) (*Spectrum, error) {
	d := desc.Cols()
	n := desc.TotalRows()
	size := c.Size()

	if n < 2 {
		return nil, fmt.Errorf("%w: descriptor covers %d", stats.ErrInsufficientRows, n)
	}
	if len(mu) != d {
		return nil, fmt.Errorf("mean vector holds %d entries, want %d", len(mu), d)
	}

	localRows := core.TotalRows(shards)

	// Zero rows pad short blocks up to d so the QR factor exists; padding
	// leaves the Gram matrix unchanged.
	rows := localRows
	if rows < d {
		rows = d
	}

	centered := mat.NewDense(rows, d, nil)
	r := 0
	for _, s := range shards {
		for i := 0; i < s.Rows; i++ {
			row := s.Row(i, d)
			for j, vj := range row {
				centered.Set(r, j, float64(vj)-mu[j])
			}
			r++
		}
	}

	var qr mat.QR
	qr.Factorize(centered)

	var rf mat.Dense
	qr.RTo(&rf)

	stage := int64(8 * (d*d + size*d*d))
	if err := ctrl.AcquireStaging(ctx, stage); err != nil {
		return nil, fmt.Errorf("stage qr factor buffers: %w", err)
	}
	defer ctrl.ReleaseStaging(stage)

	local := make([]float64, d*d)
	top := rf.Slice(0, d, 0, d)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			local[i*d+j] = top.At(i, j)
		}
	}

	gathered := make([]float64, size*d*d)

	if err := ctrl.WaitInterconnect(ctx, 8*len(local)); err != nil {
		return nil, fmt.Errorf("meter qr factor payload: %w", err)
	}

	if err := c.AllGather(ctx, local, gathered); err != nil {
		return nil, fmt.Errorf("all-gather qr factors: %w", err)
	}

	// Row-major d x d blocks concatenated in rank order form the
	// (size*d) x d stack directly.
	stacked := mat.NewDense(size*d, d, gathered)

	var svd mat.SVD
	if !svd.Factorize(stacked, mat.SVDThin) {
		return nil, fmt.Errorf("%w: svd of stacked qr factors failed", ErrNoConvergence)
	}

	sigma := svd.Values(nil)

	var v mat.Dense
	svd.VTo(&v)

	values := make([]float64, d)
	vectors := mat.NewDense(d, d, nil)
	scale := 1 / float64(n-1)

	for i := 0; i < d; i++ {
		values[i] = sigma[i] * sigma[i] * scale
		for j := 0; j < d; j++ {
			vectors.Set(i, j, v.At(j, i))
		}
	}

	clampSpectrum(values)

	return &Spectrum{Values: values, Vectors: vectors}, nil
}
