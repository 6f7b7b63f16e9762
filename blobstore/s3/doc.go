// Package s3 stores model artifacts in Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil { ... }
//
//	store := s3.NewStore(s3.NewFromConfig(cfg), "my-bucket", "pca/")
//
// Snapshots upload through the transfer manager, so large component matrices
// go multipart automatically. Reads use ranged requests, letting callers
// inspect a snapshot header without pulling the payload.
package s3
