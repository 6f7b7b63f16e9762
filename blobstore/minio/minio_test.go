package minio

import (
	"context"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnmg/pcago/blobstore"
)

// TestIntegration needs a running MinIO instance; set MINIO_ENDPOINT to
// enable it.
func TestIntegration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("minio client creation failed: %v", err)
	}

	ctx := context.Background()
	bucket := "pcago-test"

	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("minio not reachable: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "snapshots/")

	data := []byte("model snapshot payload")
	require.NoError(t, store.Put(ctx, "demo/1.pcm", data))

	got, err := blobstore.ReadAll(ctx, store, "demo/1.pcm")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "demo/")
	require.NoError(t, err)
	assert.Contains(t, names, "demo/1.pcm")

	require.NoError(t, store.Delete(ctx, "demo/1.pcm"))

	_, err = store.Open(ctx, "demo/1.pcm")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
