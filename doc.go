// Package pcago provides distributed principal component analysis for Go.
//
// Pcago fits a PCA model over a dataset whose rows are partitioned across
// the ranks of a cluster. Every rank holds only its own shards; one
// collective exchange per fit reduces the global statistics, every rank
// solves the same replicated eigenproblem, and all ranks end up with an
// identical model. Projections then run rank-local with no communication.
//
// # Quick Start
//
// In-process cluster (tests, examples, single host):
//
//	ctx := context.Background()
//
//	// 100 rows of 4 features, split across two ranks.
//	desc, _ := partition.NewDescriptor([]partition.RankSize{
//	    {Rank: 0, Rows: 50},
//	    {Rank: 1, Rows: 50},
//	}, 4)
//
//	cluster, _ := pcago.NewCluster[float64](desc)
//	defer cluster.Close()
//
//	params := pcago.DefaultParams()
//	params.NComponents = 2
//
//	models, _ := cluster.FitAll(ctx, [][]core.Shard[float64]{rank0Shards, rank1Shards}, params)
//	fmt.Println(models[0].ExplainedVarRatio)
//
// One engine per process (multi-host):
//
//	eng, _ := pcago.New[float32](communicator, desc)  // any comm.Communicator
//	defer eng.Close()
//
//	m, _ := eng.Fit(ctx, shards, params)
//
// # Projections
//
// Transform and InverseTransform write into caller-allocated buffers, one
// per shard:
//
//	out := [][]float64{make([]float64, 50*2)}  // rows x components
//	_ = eng.Transform(ctx, m, shards, out, params)
//
//	back := [][]float64{make([]float64, 50*4)}  // rows x features
//	_ = eng.InverseTransform(ctx, m, scoreShards, back, params)
//
// # Algorithms
//
// Three solvers produce the same spectrum up to floating-point tolerance:
//
//	params.Algorithm = solver.CovEigDC      // covariance + divide and conquer (default)
//	params.Algorithm = solver.CovEigJacobi  // covariance + cyclic Jacobi sweeps
//	params.Algorithm = solver.QR            // stacked per-rank QR, no covariance formed
//
// The covariance solvers reduce column sums and the Gram matrix in a single
// all-reduce; QR gathers the d x d R factors instead, which wins when the
// feature count is small and conditioning matters.
//
// # Snapshots
//
// Models serialize to a framed, checksummed snapshot and travel through any
// blob store:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("models/"))
//	ms := model.NewStore[float64](store)
//	_ = ms.Save(ctx, "iris", "1", m)
//	m2, _ := ms.Load(ctx, "iris", "1")
//
// # Key Features
//
//   - One all-reduce per covariance fit, one all-gather per QR fit
//   - Deterministic reductions: same partition, same bits, every rank
//   - float32 and float64 datasets behind one generic API
//   - Whitened projections with exact inverse
//   - Versioned model registry with tag search and CAS publishing
//   - Cloud-native snapshot storage (S3/MinIO via blobstore)
//   - mmap-backed shard files for zero-copy local data
package pcago
