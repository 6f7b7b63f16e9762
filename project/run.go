package project

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnmg/pcago/core"
)

// blockRows is the fan-out granularity: one pool task covers up to this many
// rows of one shard.
const blockRows = 512

// TransformAll projects every shard into its output buffer, fanning row
// blocks out over the pool. out[s] receives shards[s].Rows*k values. A nil
// pool runs inline on the calling goroutine.
func TransformAll[T core.Float](ctx context.Context, p *Pool, b *Basis, shards []core.Shard[T], out [][]T) error {
	if len(out) != len(shards) {
		return fmt.Errorf("%w: %d output buffers for %d shards", ErrBufferShape, len(out), len(shards))
	}

	for s := range shards {
		if err := checkShard(shards[s], b.d, "input"); err != nil {
			return err
		}
		if len(out[s]) != shards[s].Rows*b.k {
			return fmt.Errorf("%w: output %d holds %d values, want %d", ErrBufferShape, s, len(out[s]), shards[s].Rows*b.k)
		}
	}

	return runBlocks(ctx, p, shards, func(s, from, to int) {
		Transform(b, shards[s], out[s], from, to)
	})
}

// InverseTransformAll reconstructs every projected shard into its output
// buffer. out[s] receives shards[s].Rows*d values. A nil pool runs inline.
func InverseTransformAll[T core.Float](ctx context.Context, p *Pool, b *Basis, shards []core.Shard[T], out [][]T) error {
	if len(out) != len(shards) {
		return fmt.Errorf("%w: %d output buffers for %d shards", ErrBufferShape, len(out), len(shards))
	}

	for s := range shards {
		if err := checkShard(shards[s], b.k, "input"); err != nil {
			return err
		}
		if len(out[s]) != shards[s].Rows*b.d {
			return fmt.Errorf("%w: output %d holds %d values, want %d", ErrBufferShape, s, len(out[s]), shards[s].Rows*b.d)
		}
	}

	return runBlocks(ctx, p, shards, func(s, from, to int) {
		InverseTransform(b, shards[s], out[s], from, to)
	})
}

// runBlocks cuts shards into row blocks and runs them on the pool. Blocks
// write disjoint output ranges, so they need no coordination beyond the final
// wait.
func runBlocks[T core.Float](ctx context.Context, p *Pool, shards []core.Shard[T], run func(s, from, to int)) error {
	if p == nil {
		for s := range shards {
			if err := ctx.Err(); err != nil {
				return err
			}
			run(s, 0, shards[s].Rows)
		}
		return nil
	}

	var wg sync.WaitGroup
	var submitErr error

	for s := range shards {
		rows := shards[s].Rows
		for from := 0; from < rows && submitErr == nil; from += blockRows {
			to := from + blockRows
			if to > rows {
				to = rows
			}

			s, from, to := s, from, to
			wg.Add(1)
			err := p.Submit(ctx, func() {
				defer wg.Done()
				run(s, from, to)
			})
			if err != nil {
				wg.Done()
				submitErr = err
			}
		}
		if submitErr != nil {
			break
		}
	}

	wg.Wait()

	if submitErr != nil {
		return submitErr
	}

	return ctx.Err()
}
