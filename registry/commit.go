package registry

import (
	"context"
	"errors"
	"sync"
)

// ErrConcurrentCommit is returned when another publisher committed the same
// catalog version first. Callers should reload the catalog and retry.
var ErrConcurrentCommit = errors.New("registry: concurrent commit")

// CommitStore tracks the current catalog revision. Commit must be atomic:
// of two publishers racing to commit the same version, exactly one wins and
// the other observes ErrConcurrentCommit.
type CommitStore interface {
	// Current returns the latest committed version and the blob key of its
	// catalog. Version 0 with an empty key means nothing has been
	// committed yet.
	Current(ctx context.Context) (uint64, string, error)

	// Commit records version as pointing at key. It fails with
	// ErrConcurrentCommit when version has already been committed.
	Commit(ctx context.Context, version uint64, key string) error
}

// MemoryCommitStore is an in-process CommitStore for tests and single-node
// use.
type MemoryCommitStore struct {
	mu      sync.Mutex
	commits map[uint64]string
	latest  uint64
}

var _ CommitStore = (*MemoryCommitStore)(nil)

// NewMemoryCommitStore creates an empty in-memory commit store.
func NewMemoryCommitStore() *MemoryCommitStore {
	return &MemoryCommitStore{
		commits: make(map[uint64]string),
	}
}

// Current returns the highest committed version and its catalog key.
func (s *MemoryCommitStore) Current(_ context.Context) (uint64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == 0 {
		return 0, "", nil
	}

	return s.latest, s.commits[s.latest], nil
}

// Commit records version unless it was already taken.
func (s *MemoryCommitStore) Commit(_ context.Context, version uint64, key string) error {
	if version == 0 {
		return errors.New("registry: commit version must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.commits[version]; ok {
		return ErrConcurrentCommit
	}

	s.commits[version] = key
	if version > s.latest {
		s.latest = version
	}

	return nil
}
