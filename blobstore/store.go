// Package blobstore abstracts where fitted model artifacts live: snapshots,
// registry catalogs, and anything else the engine persists as immutable
// bytes.
//
// Artifacts are written whole with Put and read either whole with ReadAll or
// incrementally through a Blob. Stores over remote object storage translate
// ReadAt into ranged requests; the local store memory-maps files so ReadAll
// of a snapshot costs one copy at most.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when an artifact does not exist.
//
// Implementations return errors satisfying errors.Is(err, ErrNotFound). The
// default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store reads and writes immutable artifacts by name. Names use forward
// slashes regardless of platform.
type Store interface {
	// Open opens an artifact for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Put writes an artifact atomically, replacing any previous bytes.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes an artifact. Deleting a missing artifact is not an
	// error.
	Delete(ctx context.Context, name string) error

	// List returns artifact names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to one artifact.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off, following the io.ReaderAt
	// contract except for the added context.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the artifact size in bytes.
	Size() int64

	io.Closer
}

// Mappable is an optional Blob interface for zero-copy access. The returned
// slice stays valid until the Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}

// ReadAll reads a whole artifact, taking the zero-copy view when the blob
// offers one. The returned bytes are always owned by the caller.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if m, ok := b.(Mappable); ok {
		raw, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}

	out := make([]byte, b.Size())
	if len(out) == 0 {
		return out, nil
	}

	n, err := b.ReadAt(ctx, out, 0)
	if err != nil && (err != io.EOF || n != len(out)) {
		return nil, err
	}

	return out, nil
}
