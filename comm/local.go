package comm

import (
	"context"
	"fmt"
)

// Local is the single-rank Communicator. Collectives validate their inputs
// and return immediately; it lets the engine run unchanged on one process.
type Local struct{}

var _ Communicator = Local{}

// NewLocal returns the single-rank Communicator.
func NewLocal() Local { return Local{} }

// Rank implements Communicator.
func (Local) Rank() int { return 0 }

// Size implements Communicator.
func (Local) Size() int { return 1 }

// AllReduceSum implements Communicator. With one rank the sum is the input.
func (Local) AllReduceSum(ctx context.Context, _ []float64) error {
	return ctx.Err()
}

// AllGather implements Communicator.
func (Local) AllGather(ctx context.Context, local, gathered []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(gathered) != len(local) {
		return fmt.Errorf("%w: gathered holds %d values, need %d", ErrBufferMismatch, len(gathered), len(local))
	}

	copy(gathered, local)

	return nil
}

// Broadcast implements Communicator.
func (Local) Broadcast(ctx context.Context, _ []float64, root int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if root != 0 {
		return fmt.Errorf("%w: root %d, size 1", ErrInvalidRoot, root)
	}

	return nil
}

// Barrier implements Communicator.
func (Local) Barrier(ctx context.Context) error {
	return ctx.Err()
}
