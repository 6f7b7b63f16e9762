package project

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var count atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), func() {
			defer wg.Done()
			count.Add(1)
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, int64(100), count.Load())
}

func TestPoolDefaultWorkers(t *testing.T) {
	pool := NewPool(0)
	defer pool.Close()

	assert.Greater(t, pool.Workers(), 0)
}

func TestPoolSubmitAfterClose(t *testing.T) {
	pool := NewPool(1)
	pool.Close()

	err := pool.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolCloseIdempotent(t *testing.T) {
	pool := NewPool(1)
	pool.Close()
	pool.Close()
}

func TestPoolCloseDrains(t *testing.T) {
	pool := NewPool(1)

	var count atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), func() {
			defer wg.Done()
			count.Add(1)
		})
		require.NoError(t, err)
	}

	pool.Close()
	wg.Wait()

	assert.Equal(t, int64(10), count.Load())
}

func TestPoolSubmitCancelled(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker and fill the queue so the next submit
	// has to wait on the context.
	require.NoError(t, pool.Submit(context.Background(), func() { <-block }))
	for {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := pool.Submit(ctx, func() { <-block })
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
			break
		}
	}
}
