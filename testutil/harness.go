package testutil

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mnmg/pcago/comm"
)

// RunRanks drives fn concurrently for every rank of a fresh in-process
// cluster, one goroutine per rank, and waits for all of them. The first
// non-nil error cancels the context handed to the remaining ranks.
func RunRanks(ctx context.Context, size int, fn func(ctx context.Context, rank int, c comm.Communicator) error) error {
	comms, err := comm.NewInProcCluster(size)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for rank, c := range comms {
		g.Go(func() error {
			return fn(gctx, rank, c)
		})
	}
	return g.Wait()
}
