// Package mmap provides read-only memory-mapped file access.
//
// # Overview
//
// Memory mapping gives zero-copy access to file contents. Shard matrices can
// be large enough that reading them through the heap doubles resident memory;
// mapping lets the statistics and projection stages walk the file pages
// directly.
//
// # Usage
//
//	m, err := mmap.Open("shard-0.pcs")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//	m.Advise(mmap.AccessSequential)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) access hints
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads. Close is idempotent, but callers
// must ensure no goroutine touches Bytes() after Close returns.
package mmap
