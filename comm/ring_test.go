package comm

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingAllReduceSum(t *testing.T) {
	tests := []struct {
		name string
		size int
		n    int
	}{
		{"two ranks even chunks", 2, 4},
		{"three ranks ragged chunks", 3, 7},
		{"four ranks short buffer", 4, 3},
		{"five ranks single value", 5, 1},
		{"single rank", 1, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			comms, err := NewRingCluster(tc.size)
			require.NoError(t, err)

			bufs := make([][]float64, tc.size)
			want := make([]float64, tc.n)

			for r := range bufs {
				bufs[r] = make([]float64, tc.n)
				for i := range bufs[r] {
					v := float64((r+1)*(i+2) % 13)
					bufs[r][i] = v
					want[i] += v
				}
			}

			require.NoError(t, runAll(comms, func(c *Ring) error {
				return c.AllReduceSum(context.Background(), bufs[c.Rank()])
			}))

			for r := range bufs {
				assert.Equal(t, want, bufs[r], "rank %d", r)
			}
		})
	}
}

func TestRingMatchesRendezvous(t *testing.T) {
	const (
		size = 4
		n    = 11
	)

	rng := rand.New(rand.NewSource(7))

	inputs := make([][]float64, size)
	for r := range inputs {
		inputs[r] = make([]float64, n)
		for i := range inputs[r] {
			inputs[r][i] = rng.NormFloat64()
		}
	}

	ringComms, err := NewRingCluster(size)
	require.NoError(t, err)

	hubComms, err := NewInProcCluster(size)
	require.NoError(t, err)

	ringBufs := make([][]float64, size)
	hubBufs := make([][]float64, size)

	for r := range inputs {
		ringBufs[r] = append([]float64(nil), inputs[r]...)
		hubBufs[r] = append([]float64(nil), inputs[r]...)
	}

	require.NoError(t, runAll(ringComms, func(c *Ring) error {
		return c.AllReduceSum(context.Background(), ringBufs[c.Rank()])
	}))
	require.NoError(t, runAll(hubComms, func(c *InProc) error {
		return c.AllReduceSum(context.Background(), hubBufs[c.Rank()])
	}))

	for i := 0; i < n; i++ {
		assert.InDelta(t, hubBufs[0][i], ringBufs[0][i], 1e-12)
	}
}

func TestRingAllGather(t *testing.T) {
	const size = 3

	comms, err := NewRingCluster(size)
	require.NoError(t, err)

	out := make([][]float64, size)

	require.NoError(t, runAll(comms, func(c *Ring) error {
		local := []float64{float64(c.Rank()), float64(c.Rank()) + 0.25}
		out[c.Rank()] = make([]float64, size*len(local))

		return c.AllGather(context.Background(), local, out[c.Rank()])
	}))

	want := []float64{0, 0.25, 1, 1.25, 2, 2.25}
	for r := range out {
		assert.Equal(t, want, out[r], "rank %d", r)
	}
}

func TestRingBroadcast(t *testing.T) {
	for _, root := range []int{0, 1, 3} {
		comms, err := NewRingCluster(4)
		require.NoError(t, err)

		bufs := make([][]float64, 4)

		require.NoError(t, runAll(comms, func(c *Ring) error {
			bufs[c.Rank()] = []float64{float64(c.Rank() * 11)}

			return c.Broadcast(context.Background(), bufs[c.Rank()], root)
		}))

		want := []float64{float64(root * 11)}
		for r := range bufs {
			assert.Equal(t, want, bufs[r], "root %d rank %d", root, r)
		}
	}
}

func TestRingBarrier(t *testing.T) {
	const size = 4

	comms, err := NewRingCluster(size)
	require.NoError(t, err)

	var entered atomic.Int32

	require.NoError(t, runAll(comms, func(c *Ring) error {
		entered.Add(1)

		if err := c.Barrier(context.Background()); err != nil {
			return err
		}

		// Nobody leaves before everyone has arrived.
		assert.Equal(t, int32(size), entered.Load())

		return nil
	}))
}

func TestRingCancellation(t *testing.T) {
	comms, err := NewRingCluster(2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = comms[0].AllReduceSum(ctx, []float64{1, 2})
	assert.ErrorIs(t, err, ErrAborted)
}
