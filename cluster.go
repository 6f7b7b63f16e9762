package pcago

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mnmg/pcago/comm"
	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/model"
	"github.com/mnmg/pcago/partition"
)

// Cluster drives every rank of an analysis inside one process, one engine
// per rank over a shared in-process hub. It serves tests, examples, and
// single-host runs of the distributed path; multi-host deployments create
// one Engine per process over their own communicator instead.
type Cluster[T core.Float] struct {
	desc    *partition.Descriptor
	engines []*Engine[T]
}

// NewCluster creates one engine per descriptor rank. Options apply to every
// engine.
func NewCluster[T core.Float](desc *partition.Descriptor, optFns ...Option) (*Cluster[T], error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil partition descriptor", ErrInvalidPartition)
	}

	comms, err := comm.NewInProcCluster(desc.Ranks())
	if err != nil {
		return nil, translateError(err)
	}

	engines := make([]*Engine[T], len(comms))
	for rank, c := range comms {
		e, err := New[T](c, desc, optFns...)
		if err != nil {
			for _, open := range engines[:rank] {
				_ = open.Close()
			}
			return nil, err
		}
		engines[rank] = e
	}

	return &Cluster[T]{desc: desc, engines: engines}, nil
}

// Engine returns the engine of one rank. rank must be in [0, Size).
func (cl *Cluster[T]) Engine(rank int) *Engine[T] { return cl.engines[rank] }

// Size returns the number of ranks.
func (cl *Cluster[T]) Size() int { return len(cl.engines) }

// Descriptor returns the shared partition descriptor.
func (cl *Cluster[T]) Descriptor() *partition.Descriptor { return cl.desc }

// Close closes every engine.
func (cl *Cluster[T]) Close() error {
	for _, e := range cl.engines {
		_ = e.Close()
	}
	return nil
}

// FitAll runs one collective fit with every rank on its own goroutine.
// shardsByRank[r] is rank r's local share of the rows. The returned models
// are one per rank and identical in value; on failure the first error is
// returned and the remaining ranks abort through the hub.
func (cl *Cluster[T]) FitAll(ctx context.Context, shardsByRank [][]core.Shard[T], params Params) ([]*model.Model[T], error) {
	if err := cl.checkRanks(len(shardsByRank)); err != nil {
		return nil, err
	}

	models := make([]*model.Model[T], len(cl.engines))
	g, gctx := errgroup.WithContext(ctx)
	for rank, e := range cl.engines {
		g.Go(func() error {
			m, err := e.Fit(gctx, shardsByRank[rank], params)
			if err != nil {
				return err
			}
			models[rank] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return models, nil
}

// FitTransformAll is FitAll followed by each rank projecting its own shards
// into outByRank[r], which must hold one buffer per shard sized
// rows*NComponents.
func (cl *Cluster[T]) FitTransformAll(ctx context.Context, shardsByRank [][]core.Shard[T], outByRank [][][]T, params Params) ([]*model.Model[T], error) {
	if err := cl.checkRanks(len(shardsByRank)); err != nil {
		return nil, err
	}
	if err := cl.checkRanks(len(outByRank)); err != nil {
		return nil, err
	}

	models := make([]*model.Model[T], len(cl.engines))
	g, gctx := errgroup.WithContext(ctx)
	for rank, e := range cl.engines {
		g.Go(func() error {
			m, err := e.FitTransform(gctx, shardsByRank[rank], outByRank[rank], params)
			if err != nil {
				return err
			}
			models[rank] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return models, nil
}

func (cl *Cluster[T]) checkRanks(got int) error {
	if got != len(cl.engines) {
		return fmt.Errorf("%w: data for %d ranks, cluster has %d", ErrInvalidPartition, got, len(cl.engines))
	}
	return nil
}
