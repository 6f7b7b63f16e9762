package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnmg/pcago/blobstore"
	"github.com/mnmg/pcago/codec"
)

func TestRegistryPublishResolve(t *testing.T) {
	ctx := context.Background()
	reg := New(blobstore.NewMemory(), NewMemoryCommitStore())

	first := testEntry("iris", "1", map[string]string{"env": "prod"})
	second := testEntry("iris", "2", map[string]string{"env": "prod"})
	second.CreatedAt = testEpoch.Add(time.Hour)

	require.NoError(t, reg.Publish(ctx, first))
	require.NoError(t, reg.Publish(ctx, second))

	got, err := reg.Resolve(ctx, "iris", "1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	latest, err := reg.Resolve(ctx, "iris", "")
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	found, err := reg.Find(ctx, Filter{Tags: map[string]string{"env": "prod"}})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestRegistryEmpty(t *testing.T) {
	ctx := context.Background()
	reg := New(blobstore.NewMemory(), NewMemoryCommitStore())

	cat, err := reg.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, cat.Len())

	_, err = reg.Resolve(ctx, "iris", "")
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestRegistryPublishInvalid(t *testing.T) {
	reg := New(blobstore.NewMemory(), NewMemoryCommitStore())
	err := reg.Publish(context.Background(), Entry{Name: "a/b", Version: "1"})
	assert.ErrorIs(t, err, ErrBadEntry)
}

func TestRegistryPublishFillsCreatedAt(t *testing.T) {
	ctx := context.Background()
	reg := New(blobstore.NewMemory(), NewMemoryCommitStore())

	e := testEntry("iris", "1", nil)
	e.CreatedAt = time.Time{}
	require.NoError(t, reg.Publish(ctx, e))

	got, err := reg.Resolve(ctx, "iris", "1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRegistryRemove(t *testing.T) {
	ctx := context.Background()
	reg := New(blobstore.NewMemory(), NewMemoryCommitStore())

	require.NoError(t, reg.Publish(ctx, testEntry("iris", "1", nil)))
	require.NoError(t, reg.Remove(ctx, "iris", "1"))

	_, err := reg.Resolve(ctx, "iris", "1")
	assert.ErrorIs(t, err, ErrNoEntry)

	assert.ErrorIs(t, reg.Remove(ctx, "iris", "1"), ErrNoEntry)
}

func TestRegistryCatalogRevisions(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemory()
	commits := NewMemoryCommitStore()
	reg := New(blobs, commits)

	require.NoError(t, reg.Publish(ctx, testEntry("iris", "1", nil)))
	require.NoError(t, reg.Publish(ctx, testEntry("iris", "2", nil)))

	// Each publish writes a complete catalog snapshot under a new key.
	keys, err := blobs.List(ctx, "registry/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"registry/0000000000000001.cat",
		"registry/0000000000000002.cat",
	}, keys)

	version, key, err := commits.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, "registry/0000000000000002.cat", key)
}

func TestRegistryOptions(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemory()
	reg := New(blobs, NewMemoryCommitStore(),
		WithCodec(codec.Binary{}),
		WithPrefix("fits/catalog"),
	)

	require.NoError(t, reg.Publish(ctx, testEntry("iris", "1", map[string]string{"env": "prod"})))

	keys, err := blobs.List(ctx, "fits/catalog/")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	got, err := reg.Resolve(ctx, "iris", "1")
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Tags["env"])
	assert.True(t, got.CreatedAt.Equal(testEpoch))
}

// racingCommitStore sneaks a competing commit in after the first Current
// call, modelling a second publisher winning the race.
type racingCommitStore struct {
	*MemoryCommitStore
	once sync.Once
}

func (s *racingCommitStore) Current(ctx context.Context) (uint64, string, error) {
	version, key, err := s.MemoryCommitStore.Current(ctx)
	s.once.Do(func() {
		_ = s.MemoryCommitStore.Commit(ctx, version+1, "stolen")
	})
	return version, key, err
}

func TestRegistryConcurrentCommit(t *testing.T) {
	ctx := context.Background()
	commits := &racingCommitStore{MemoryCommitStore: NewMemoryCommitStore()}
	reg := New(blobstore.NewMemory(), commits)

	err := reg.Publish(ctx, testEntry("iris", "1", nil))
	assert.ErrorIs(t, err, ErrConcurrentCommit)
}
