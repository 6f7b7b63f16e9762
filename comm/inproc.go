package comm

import (
	"context"
	"fmt"
	"sync"
)

// InProc is an in-process Communicator backed by a rendezvous hub shared by
// all ranks of a cluster. Each rank runs on its own goroutine; a collective
// completes when the last rank arrives.
//
// The last arrival combines all deposited buffers. Sums are accumulated in
// ascending rank order, so the result is independent of arrival order and of
// how rows are partitioned across ranks.
type InProc struct {
	rank int
	hub  *hub
}

var _ Communicator = (*InProc)(nil)

// NewInProcCluster returns one connected Communicator per rank.
func NewInProcCluster(size int) ([]*InProc, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrClusterSize, size)
	}

	h := &hub{size: size}

	comms := make([]*InProc, size)
	for i := range comms {
		comms[i] = &InProc{rank: i, hub: h}
	}

	return comms, nil
}

// Rank implements Communicator.
func (c *InProc) Rank() int { return c.rank }

// Size implements Communicator.
func (c *InProc) Size() int { return c.hub.size }

// AllReduceSum implements Communicator.
func (c *InProc) AllReduceSum(ctx context.Context, buf []float64) error {
	return c.hub.join(ctx, c.rank, opAllReduce, 0, buf, nil)
}

// AllGather implements Communicator.
func (c *InProc) AllGather(ctx context.Context, local, gathered []float64) error {
	if len(gathered) != c.hub.size*len(local) {
		return fmt.Errorf("%w: gathered holds %d values, need %d", ErrBufferMismatch, len(gathered), c.hub.size*len(local))
	}

	return c.hub.join(ctx, c.rank, opAllGather, 0, local, gathered)
}

// Broadcast implements Communicator.
func (c *InProc) Broadcast(ctx context.Context, buf []float64, root int) error {
	if root < 0 || root >= c.hub.size {
		return fmt.Errorf("%w: root %d, size %d", ErrInvalidRoot, root, c.hub.size)
	}

	return c.hub.join(ctx, c.rank, opBroadcast, root, buf, nil)
}

// Barrier implements Communicator.
func (c *InProc) Barrier(ctx context.Context) error {
	return c.hub.join(ctx, c.rank, opBarrier, 0, nil, nil)
}

// hub coordinates one collective at a time. Ranks deposit their buffers into
// the current rendezvous; the last arrival finishes it and wakes the rest.
type hub struct {
	size int

	mu  sync.Mutex
	cur *rendezvous
}

type rendezvous struct {
	op   opKind
	root int
	n    int // per-rank payload length

	ins     [][]float64
	outs    [][]float64
	arrived int

	done     chan struct{}
	finished bool
	err      error
}

// fail resolves r with err and wakes all waiters. Callers hold h.mu.
func (h *hub) fail(r *rendezvous, err error) {
	if r.finished {
		return
	}

	r.err = err
	r.finished = true

	if h.cur == r {
		h.cur = nil
	}

	close(r.done)
}

func (h *hub) join(ctx context.Context, rank int, op opKind, root int, in, out []float64) error {
	h.mu.Lock()

	r := h.cur
	if r == nil {
		r = &rendezvous{
			op:   op,
			root: root,
			n:    len(in),
			ins:  make([][]float64, h.size),
			outs: make([][]float64, h.size),
			done: make(chan struct{}),
		}
		h.cur = r
	} else if !r.finished {
		switch {
		case r.op != op:
			h.fail(r, fmt.Errorf("%w: rank %d issued %s, round started as %s", ErrOpMismatch, rank, op, r.op))
		case r.n != len(in):
			h.fail(r, fmt.Errorf("%w: rank %d deposited %d values, round started with %d", ErrBufferMismatch, rank, len(in), r.n))
		case op == opBroadcast && r.root != root:
			h.fail(r, fmt.Errorf("%w: rank %d used root %d, round started with root %d", ErrRootMismatch, rank, root, r.root))
		}
	}

	if r.finished {
		err := r.err
		h.mu.Unlock()

		return err
	}

	r.ins[rank] = in
	r.outs[rank] = out
	r.arrived++

	if r.arrived == h.size {
		r.err = h.finish(r)
		r.finished = true
		h.cur = nil
		close(r.done)
		err := r.err
		h.mu.Unlock()

		return err
	}

	h.mu.Unlock()

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		err := fmt.Errorf("%w: rank %d: %w", ErrAborted, rank, ctx.Err())

		h.mu.Lock()
		h.fail(r, err)
		h.mu.Unlock()

		return err
	}
}

// finish combines the deposited buffers. Callers hold h.mu.
func (h *hub) finish(r *rendezvous) error {
	switch r.op {
	case opAllReduce:
		acc := make([]float64, r.n)
		for rank := 0; rank < h.size; rank++ {
			for i, v := range r.ins[rank] {
				acc[i] += v
			}
		}

		for rank := 0; rank < h.size; rank++ {
			copy(r.ins[rank], acc)
		}

	case opAllGather:
		acc := make([]float64, h.size*r.n)
		for rank := 0; rank < h.size; rank++ {
			copy(acc[rank*r.n:], r.ins[rank])
		}

		for rank := 0; rank < h.size; rank++ {
			copy(r.outs[rank], acc)
		}

	case opBroadcast:
		src := r.ins[r.root]
		for rank := 0; rank < h.size; rank++ {
			if rank != r.root {
				copy(r.ins[rank], src)
			}
		}

	case opBarrier:
		// Arrival of all ranks is the whole operation.
	}

	return nil
}
