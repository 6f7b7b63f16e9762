package comm

import (
	"context"
	"fmt"
)

// Ring is an in-process Communicator whose collectives move data around a
// ring: rank i sends to rank (i+1) mod P over a buffered channel. All-reduce
// runs as a chunked reduce-scatter followed by an allgather rotation, so per
// step each rank ships 1/P of the buffer instead of the whole thing.
//
// The reduction schedule is fixed by the cluster size, making results
// deterministic run to run. It differs from the ascending-rank order the
// rendezvous hub uses, so sums may differ from InProc by rounding only.
type Ring struct {
	rank int
	size int
	out  chan<- ringMsg
	in   <-chan ringMsg
}

var _ Communicator = (*Ring)(nil)

type ringMsg struct {
	op    opKind
	step  int
	chunk int
	data  []float64
}

// NewRingCluster returns one connected ring Communicator per rank.
func NewRingCluster(size int) ([]*Ring, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrClusterSize, size)
	}

	chans := make([]chan ringMsg, size)
	for i := range chans {
		chans[i] = make(chan ringMsg, 2)
	}

	comms := make([]*Ring, size)
	for i := range comms {
		comms[i] = &Ring{
			rank: i,
			size: size,
			out:  chans[(i+1)%size],
			in:   chans[i],
		}
	}

	return comms, nil
}

// Rank implements Communicator.
func (c *Ring) Rank() int { return c.rank }

// Size implements Communicator.
func (c *Ring) Size() int { return c.size }

func (c *Ring) send(ctx context.Context, m ringMsg) error {
	select {
	case c.out <- m:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: rank %d: %w", ErrAborted, c.rank, ctx.Err())
	}
}

func (c *Ring) recv(ctx context.Context, op opKind, step, chunk, n int) (ringMsg, error) {
	select {
	case m := <-c.in:
		switch {
		case m.op != op:
			return ringMsg{}, fmt.Errorf("%w: rank %d expected %s, neighbor sent %s", ErrOpMismatch, c.rank, op, m.op)
		case m.step != step || m.chunk != chunk:
			return ringMsg{}, fmt.Errorf("%w: rank %d out of step in %s (step %d chunk %d, got step %d chunk %d)",
				ErrOpMismatch, c.rank, op, step, chunk, m.step, m.chunk)
		case len(m.data) != n:
			return ringMsg{}, fmt.Errorf("%w: rank %d received %d values, expected %d", ErrBufferMismatch, c.rank, len(m.data), n)
		}

		return m, nil
	case <-ctx.Done():
		return ringMsg{}, fmt.Errorf("%w: rank %d: %w", ErrAborted, c.rank, ctx.Err())
	}
}

// chunkOf returns the half-open range of chunk c for a buffer of n values
// split into size chunks. Trailing chunks may be empty.
func (c *Ring) chunkOf(idx, n int) (int, int) {
	cs := (n + c.size - 1) / c.size

	lo := idx * cs
	if lo > n {
		lo = n
	}

	hi := lo + cs
	if hi > n {
		hi = n
	}

	return lo, hi
}

// AllReduceSum implements Communicator.
func (c *Ring) AllReduceSum(ctx context.Context, buf []float64) error {
	if c.size == 1 {
		return ctx.Err()
	}

	n := len(buf)

	// Reduce-scatter: after P-1 rotations every rank holds the full sum of
	// one chunk, namely chunk (rank+1) mod P.
	for s := 0; s < c.size-1; s++ {
		sendIdx := (c.rank - s + c.size) % c.size
		recvIdx := (c.rank - s - 1 + c.size) % c.size

		lo, hi := c.chunkOf(sendIdx, n)
		data := make([]float64, hi-lo)
		copy(data, buf[lo:hi])

		if err := c.send(ctx, ringMsg{op: opAllReduce, step: s, chunk: sendIdx, data: data}); err != nil {
			return err
		}

		lo, hi = c.chunkOf(recvIdx, n)

		m, err := c.recv(ctx, opAllReduce, s, recvIdx, hi-lo)
		if err != nil {
			return err
		}

		for i, v := range m.data {
			buf[lo+i] += v
		}
	}

	// Allgather: rotate the completed chunks until every rank has all of
	// them.
	for s := 0; s < c.size-1; s++ {
		sendIdx := (c.rank + 1 - s + 2*c.size) % c.size
		recvIdx := (c.rank - s + c.size) % c.size

		lo, hi := c.chunkOf(sendIdx, n)
		data := make([]float64, hi-lo)
		copy(data, buf[lo:hi])

		if err := c.send(ctx, ringMsg{op: opAllReduce, step: c.size - 1 + s, chunk: sendIdx, data: data}); err != nil {
			return err
		}

		lo, hi = c.chunkOf(recvIdx, n)

		m, err := c.recv(ctx, opAllReduce, c.size-1+s, recvIdx, hi-lo)
		if err != nil {
			return err
		}

		copy(buf[lo:hi], m.data)
	}

	return nil
}

// AllGather implements Communicator.
func (c *Ring) AllGather(ctx context.Context, local, gathered []float64) error {
	n := len(local)
	if len(gathered) != c.size*n {
		return fmt.Errorf("%w: gathered holds %d values, need %d", ErrBufferMismatch, len(gathered), c.size*n)
	}

	copy(gathered[c.rank*n:], local)

	for s := 0; s < c.size-1; s++ {
		sendIdx := (c.rank - s + c.size) % c.size
		recvIdx := (c.rank - s - 1 + c.size) % c.size

		data := make([]float64, n)
		copy(data, gathered[sendIdx*n:(sendIdx+1)*n])

		if err := c.send(ctx, ringMsg{op: opAllGather, step: s, chunk: sendIdx, data: data}); err != nil {
			return err
		}

		m, err := c.recv(ctx, opAllGather, s, recvIdx, n)
		if err != nil {
			return err
		}

		copy(gathered[recvIdx*n:], m.data)
	}

	return nil
}

// Broadcast implements Communicator.
func (c *Ring) Broadcast(ctx context.Context, buf []float64, root int) error {
	if root < 0 || root >= c.size {
		return fmt.Errorf("%w: root %d, size %d", ErrInvalidRoot, root, c.size)
	}

	if c.size == 1 {
		return ctx.Err()
	}

	// Relay root's buffer around the ring; the rank just before root stops
	// the relay.
	hop := (c.rank - root + c.size) % c.size

	if hop == 0 {
		data := make([]float64, len(buf))
		copy(data, buf)

		return c.send(ctx, ringMsg{op: opBroadcast, chunk: root, data: data})
	}

	m, err := c.recv(ctx, opBroadcast, 0, root, len(buf))
	if err != nil {
		return err
	}

	copy(buf, m.data)

	if hop < c.size-1 {
		return c.send(ctx, m)
	}

	return nil
}

// Barrier implements Communicator.
func (c *Ring) Barrier(ctx context.Context) error {
	if c.size == 1 {
		return ctx.Err()
	}

	// Two token passes: the first proves every rank has entered, the second
	// releases them. One pass is not enough; early ranks would leave before
	// late ranks arrived.
	for pass := 0; pass < 2; pass++ {
		token := ringMsg{op: opBarrier, step: pass}

		if c.rank == 0 {
			if err := c.send(ctx, token); err != nil {
				return err
			}

			if _, err := c.recv(ctx, opBarrier, pass, 0, 0); err != nil {
				return err
			}

			continue
		}

		if _, err := c.recv(ctx, opBarrier, pass, 0, 0); err != nil {
			return err
		}

		if err := c.send(ctx, token); err != nil {
			return err
		}
	}

	return nil
}
