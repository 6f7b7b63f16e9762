package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mnmg/pcago/blobstore"
	"github.com/mnmg/pcago/resource"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.HeadObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.GetObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.DeleteObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.ListObjectsV2Output), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.CreateMultipartUploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.UploadPartOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.CompleteMultipartUploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.AbortMultipartUploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestOpen(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "models", "pca")

	t.Run("not found", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Bucket == "models" && *in.Key == "pca/missing"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(context.Background(), "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("found", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Key == "pca/demo/1.pcm"
		})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(64)}, nil).Once()

		b, err := store.Open(context.Background(), "demo/1.pcm")
		require.NoError(t, err)
		assert.Equal(t, int64(64), b.Size())
	})
}

func TestPutUploads(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "models", "pca")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "models" && *in.Key == "pca/demo/1.pcm"
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		data, _ := io.ReadAll(in.Body)
		assert.Equal(t, []byte("snapshot"), data)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	err := store.Put(context.Background(), "demo/1.pcm", []byte("snapshot"))
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestDelete(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "models", "pca")

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "pca/demo/1.pcm"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, store.Delete(context.Background(), "demo/1.pcm"))
	client.AssertExpectations(t)
}

func TestListPagination(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "models", "pca/")

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("next"),
		Contents:              []types.Object{{Key: aws.String("pca/demo/2.pcm")}},
	}, nil).Once()

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken != nil && *in.ContinuationToken == "next"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("pca/demo/1.pcm")}},
	}, nil).Once()

	names, err := store.List(context.Background(), "demo/")
	require.NoError(t, err)
	assert.Equal(t, []string{"demo/1.pcm", "demo/2.pcm"}, names)
}

func TestBlobReadAt(t *testing.T) {
	client := new(mockClient)
	b := &blob{client: client, bucket: "models", key: "k", size: 10}

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Range == "bytes=2-6"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("23456")),
	}, nil).Once()

	p := make([]byte, 5)
	n, err := b.ReadAt(context.Background(), p, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "23456", string(p))
}

func TestBlobReadAtTail(t *testing.T) {
	client := new(mockClient)
	b := &blob{client: client, bucket: "models", key: "k", size: 10}

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Range == "bytes=8-9"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("89")),
	}, nil).Once()

	p := make([]byte, 5)
	n, err := b.ReadAt(context.Background(), p, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBlobReadAtBeyondEnd(t *testing.T) {
	b := &blob{size: 10}

	p := make([]byte, 4)
	_, err := b.ReadAt(context.Background(), p, 10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewWithClient(t *testing.T) {
	client := new(mockClient)

	store, err := New(context.Background(), "models",
		WithClient(client),
		WithPrefix("pca"),
	)
	require.NoError(t, err)
	assert.Equal(t, "pca/demo/1.pcm", store.key("demo/1.pcm"))
}

func TestPutMetered(t *testing.T) {
	client := new(mockClient)
	ctrl := resource.NewController(resource.Config{InterconnectBytesPerSec: 1 << 20})

	store, err := New(context.Background(), "models",
		WithClient(client),
		WithController(ctrl),
	)
	require.NoError(t, err)

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		data, _ := io.ReadAll(in.Body)
		return *in.Key == "demo/1.pcm" && string(data) == "snapshot"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "demo/1.pcm", []byte("snapshot")))
	client.AssertExpectations(t)
}
