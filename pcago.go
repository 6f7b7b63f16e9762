package pcago

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mnmg/pcago/comm"
	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/internal/floats"
	"github.com/mnmg/pcago/model"
	"github.com/mnmg/pcago/partition"
	"github.com/mnmg/pcago/project"
	"github.com/mnmg/pcago/resource"
	"github.com/mnmg/pcago/solver"
	"github.com/mnmg/pcago/stats"
)

// Engine is one rank's handle on a distributed principal component analysis.
// Every participant creates its own Engine over the shared partition
// descriptor and its own communicator endpoint, then drives the same calls
// in the same order.
//
// Fit and FitTransform are collective: every rank must call them together
// with the same parameters, and all ranks return the same model. Transform
// and InverseTransform are rank-local and touch only this rank's shards.
type Engine[T core.Float] struct {
	comm    comm.Communicator
	desc    *partition.Descriptor
	pool    *project.Pool
	ctrl    *resource.Controller
	logger  *Logger
	metrics MetricsCollector

	consistencyCheck bool
	consistencyTol   float64
}

// New creates the engine for one rank. desc must describe the same partition
// on every rank and must cover exactly the ranks of c.
func New[T core.Float](c comm.Communicator, desc *partition.Descriptor, optFns ...Option) (*Engine[T], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil communicator", ErrCommunication)
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: nil partition descriptor", ErrInvalidPartition)
	}
	if desc.Ranks() != c.Size() {
		return nil, fmt.Errorf("%w: descriptor covers %d ranks, cluster has %d", ErrInvalidPartition, desc.Ranks(), c.Size())
	}
	if _, ok := desc.RowsOf(c.Rank()); !ok {
		return nil, fmt.Errorf("%w: rank %d missing from descriptor", ErrInvalidPartition, c.Rank())
	}

	opts := applyOptions(optFns)

	return &Engine[T]{
		comm:             c,
		desc:             desc,
		pool:             project.NewPool(opts.workers),
		ctrl:             opts.controller,
		logger:           opts.logger.WithRank(c.Rank()),
		metrics:          opts.metricsCollector,
		consistencyCheck: opts.consistencyCheck,
		consistencyTol:   opts.consistencyTol,
	}, nil
}

// Rank returns this engine's rank in the cluster.
func (e *Engine[T]) Rank() int { return e.comm.Rank() }

// Size returns the number of ranks in the cluster.
func (e *Engine[T]) Size() int { return e.comm.Size() }

// Descriptor returns the partition descriptor the engine was created with.
func (e *Engine[T]) Descriptor() *partition.Descriptor { return e.desc }

// Close releases the projection worker pool. The engine must not be used
// after Close. Close is idempotent and does not touch the communicator.
func (e *Engine[T]) Close() error {
	e.pool.Close()
	return nil
}

// Fit estimates the principal components of the globally partitioned dataset.
// shards is this rank's share of the rows; their summed row count must match
// the descriptor entry for this rank. All ranks return an identical model.
func (e *Engine[T]) Fit(ctx context.Context, shards []core.Shard[T], params Params) (*model.Model[T], error) {
	start := time.Now()
	m, err := e.fit(ctx, shards, params)
	duration := time.Since(start)
	err = translateError(err)
	e.metrics.RecordFit(duration, err)
	e.logger.LogFitDone(ctx, params.Verbose, params.Algorithm.String(), params.Components(e.desc.Cols()), duration, err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FitTransform fits the model and projects this rank's shards into out.
// out must hold one buffer per shard with rows*NComponents values each; the
// projection reuses the freshly fitted model, so the data is scanned once
// more but the cross-rank statistics are not recomputed.
func (e *Engine[T]) FitTransform(ctx context.Context, shards []core.Shard[T], out [][]T, params Params) (*model.Model[T], error) {
	m, err := e.Fit(ctx, shards, params)
	if err != nil {
		return nil, err
	}
	if err := e.Transform(ctx, m, shards, out, params); err != nil {
		return nil, err
	}
	return m, nil
}

// Transform projects this rank's shards onto the model's components. Each
// out buffer receives its shard's scores, row-major with NComponents columns.
// Whitening follows params.Whiten, not the flag recorded in the model.
func (e *Engine[T]) Transform(ctx context.Context, m *model.Model[T], shards []core.Shard[T], out [][]T, params Params) error {
	start := time.Now()
	err := e.project(ctx, m, shards, out, params.Whiten, false)
	duration := time.Since(start)
	err = translateError(err)
	rows := core.TotalRows(shards)
	e.metrics.RecordTransform(rows, duration, err)
	e.logger.LogProjection(ctx, params.Verbose, "transform", rows, duration, err)
	return err
}

// InverseTransform maps score shards back to feature space. Each input shard
// holds rows of NComponents scores and the matching out buffer receives
// rows*NFeatures values. Whitening is undone when params.Whiten is set.
func (e *Engine[T]) InverseTransform(ctx context.Context, m *model.Model[T], shards []core.Shard[T], out [][]T, params Params) error {
	start := time.Now()
	err := e.project(ctx, m, shards, out, params.Whiten, true)
	duration := time.Since(start)
	err = translateError(err)
	rows := core.TotalRows(shards)
	e.metrics.RecordInverseTransform(rows, duration, err)
	e.logger.LogProjection(ctx, params.Verbose, "inverse-transform", rows, duration, err)
	return err
}

func (e *Engine[T]) project(ctx context.Context, m *model.Model[T], shards []core.Shard[T], out [][]T, whiten, inverse bool) error {
	if m == nil {
		return fmt.Errorf("%w: nil model", ErrNotFitted)
	}
	basis, err := m.BasisFor(whiten)
	if err != nil {
		return err
	}
	if inverse {
		return project.InverseTransformAll(ctx, e.pool, basis, shards, out)
	}
	return project.TransformAll(ctx, e.pool, basis, shards, out)
}

func (e *Engine[T]) fit(ctx context.Context, shards []core.Shard[T], params Params) (*model.Model[T], error) {
	d := e.desc.Cols()

	if err := params.Validate(d); err != nil {
		return nil, err
	}
	if err := partition.ValidateShards(e.desc, e.comm.Rank(), shards); err != nil {
		return nil, err
	}

	k := params.Components(d)
	e.logger.LogFitStart(ctx, params.Verbose, params.Algorithm.String(),
		e.comm.Size(), e.desc.TotalRows(), d, k)

	spectrum, mu, err := e.solve(ctx, shards, params)
	if err != nil {
		return nil, err
	}

	if params.SignFlip {
		solver.SignFlip(spectrum.Vectors)
	}

	m := e.assemble(spectrum, mu, k, params)

	if e.consistencyCheck {
		if err := e.verifyConsistency(ctx, m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// solve runs the distributed stages of the chosen algorithm and returns the
// full spectrum together with the global column means.
func (e *Engine[T]) solve(ctx context.Context, shards []core.Shard[T], params Params) (*solver.Spectrum, []float64, error) {
	d := e.desc.Cols()
	verbose := params.Verbose

	if params.Algorithm == solver.QR {
		stageStart := time.Now()
		mu, err := stats.ColumnMeans(ctx, e.comm, e.desc, shards, e.ctrl)
		e.observeCollective(ctx, verbose, "allreduce-sums", 8*d, time.Since(stageStart), err)
		if err != nil {
			return nil, nil, err
		}

		stageStart = time.Now()
		spectrum, err := solver.TSQR(ctx, e.comm, e.desc, shards, mu, e.ctrl)
		stageTime := time.Since(stageStart)
		e.observeCollective(ctx, verbose, "allgather-rfactors", 8*e.comm.Size()*d*d, stageTime, err)
		e.observeSolve(ctx, verbose, params.Algorithm.String(), d, stageTime, err)
		if err != nil {
			return nil, nil, err
		}
		return spectrum, mu, nil
	}

	stageStart := time.Now()
	moments, err := stats.ColumnMoments(ctx, e.comm, e.desc, shards, e.ctrl)
	e.observeCollective(ctx, verbose, "allreduce-moments", 8*(d+d*d), time.Since(stageStart), err)
	if err != nil {
		return nil, nil, err
	}

	stageStart = time.Now()
	var spectrum *solver.Spectrum
	if params.Algorithm == solver.CovEigJacobi {
		spectrum, err = solver.EigJacobi(moments.Cov, params.tol(), params.maxSweeps())
	} else {
		spectrum, err = solver.EigDC(moments.Cov)
	}
	e.observeSolve(ctx, verbose, params.Algorithm.String(), d, time.Since(stageStart), err)
	if err != nil {
		return nil, nil, err
	}

	return spectrum, moments.Mu, nil
}

// observeCollective meters one distributed stage: the payload this rank
// contributed and the wall time of the stage that carried it.
func (e *Engine[T]) observeCollective(ctx context.Context, verbose bool, op string, bytes int, duration time.Duration, err error) {
	e.metrics.RecordCollective(op, bytes, duration)
	e.logger.LogCollective(ctx, verbose, op, bytes, err)
}

func (e *Engine[T]) observeSolve(ctx context.Context, verbose bool, algorithm string, dim int, duration time.Duration, err error) {
	e.metrics.RecordSolve(algorithm, duration, err)
	e.logger.LogSolve(ctx, verbose, algorithm, dim, duration, err)
}

// assemble cuts the leading k components out of the full spectrum and packs
// them into a model. Derived quantities that depend on the discarded tail,
// the variance ratios and the noise floor, are computed over the full
// spectrum first.
func (e *Engine[T]) assemble(spectrum *solver.Spectrum, mu []float64, k int, params Params) *model.Model[T] {
	d := e.desc.Cols()
	n := e.desc.TotalRows()

	values := spectrum.Values
	ratios := solver.ExplainedVarianceRatio(values)
	singular := solver.SingularValues(values, n)
	noise := solver.NoiseVariance(values, k)

	components := make([]T, k*d)
	for i := 0; i < k; i++ {
		floats.FromFloat64(components[i*d:(i+1)*d], spectrum.Vectors.RawRowView(i))
	}

	return &model.Model[T]{
		Components:        components,
		ExplainedVar:      narrow[T](values[:k]),
		ExplainedVarRatio: narrow[T](ratios[:k]),
		SingularVals:      narrow[T](singular[:k]),
		Mu:                narrow[T](mu),
		NoiseVars:         T(noise),
		NComponents:       k,
		NFeatures:         d,
		TotalRows:         n,
		Algorithm:         params.Algorithm.String(),
		Whitened:          params.Whiten,
	}
}

// verifyConsistency broadcasts rank 0's components and checks this rank's
// copy against them. The replicated solve is deterministic, so any
// divergence means the ranks reduced different statistics.
func (e *Engine[T]) verifyConsistency(ctx context.Context, m *model.Model[T]) error {
	ref := floats.Float64s(m.Components)
	if err := e.comm.Broadcast(ctx, ref, 0); err != nil {
		return err
	}
	for i, v := range m.Components {
		if diff := math.Abs(float64(v) - ref[i]); diff > e.consistencyTol {
			return fmt.Errorf("%w: rank %d diverged from rank 0 by %g at component value %d",
				ErrCommunication, e.comm.Rank(), diff, i)
		}
	}
	return nil
}

func narrow[T core.Float](src []float64) []T {
	dst := make([]T, len(src))
	floats.FromFloat64(dst, src)
	return dst
}
