// Package testutil provides testing utilities for pcago.
//
// This package is intended for use in tests, examples, and benchmarks only.
// It provides seeded dataset generators, partition helpers, and a harness
// that drives one goroutine per rank over an in-process cluster.
//
// # Dataset Generation
//
//	rng := testutil.NewRNG(seed)
//	data := testutil.GaussianRows(rng, 100, 8)      // row-major, N(0,1) entries
//	data := testutil.LowRankRows(rng, 100, 8, 0.3)  // two planted directions + noise
//
// # Partitioning
//
//	desc, _ := testutil.Describe([]int{50, 50}, 8)
//	shards := testutil.SplitShards(data, []int{50, 50}, 8)
//
// # Multi-Rank Harness
//
//	err := testutil.RunRanks(ctx, 2, func(ctx context.Context, rank int, c comm.Communicator) error {
//	    // one rank's share of the collective
//	    return nil
//	})
package testutil
