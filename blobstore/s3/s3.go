package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mnmg/pcago/blobstore"
	"github.com/mnmg/pcago/resource"
)

// Client is the S3 surface the store depends on. *s3.Client satisfies it.
type Client interface {
	manager.UploadAPIClient
	s3.HeadObjectAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store implements blobstore.Store on an S3 bucket. rootPrefix is prepended
// to every artifact name, isolating multiple model collections in one bucket.
type Store struct {
	client   Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	ctrl     *resource.Controller
}

var _ blobstore.Store = (*Store)(nil)

// Option configures a store built through New.
type Option func(*options)

type options struct {
	client Client
	prefix string
	ctrl   *resource.Controller
}

// WithPrefix sets the root prefix prepended to every artifact name.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithClient overrides the S3 client. Useful for S3-compatible endpoints
// and for tests.
func WithClient(client Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithController meters uploads and ranged reads against ctrl's
// interconnect budget, so snapshot traffic shares the limit with
// collectives.
func WithController(ctrl *resource.Controller) Option {
	return func(o *options) {
		o.ctrl = ctrl
	}
}

// New returns a store over the given bucket, resolving region and
// credentials from the ambient AWS configuration the way the CLI does.
func New(ctx context.Context, bucket string, optFns ...Option) (*Store, error) {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}

	if o.client == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		o.client = s3.NewFromConfig(cfg)
	}

	s := NewStore(o.client, bucket, o.prefix)
	s.ctrl = o.ctrl
	return s, nil
}

// NewStore returns a store over the given client, bucket, and root prefix.
func NewStore(client Client, bucket, rootPrefix string) *Store {
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open implements blobstore.Store. Existence and size come from one
// HeadObject; bytes are fetched per ReadAt.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}

	return &blob{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
		ctrl:   s.ctrl,
	}, nil
}

// Put implements blobstore.Store through the transfer manager, which splits
// large snapshots into multipart uploads.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	body := io.Reader(bytes.NewReader(data))
	if s.ctrl != nil {
		body = resource.NewMeteredReader(ctx, body, s.ctrl)
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}

	return nil
}

// Delete implements blobstore.Store. S3 deletes of missing keys already
// succeed, matching the interface contract.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

// List implements blobstore.Store with automatic pagination.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			if s.prefix != "" {
				name = strings.TrimPrefix(name, s.prefix)
				name = strings.TrimPrefix(name, "/")
			}
			if name != "" {
				names = append(names, name)
			}
		}
	}

	sort.Strings(names)

	return names, nil
}

type blob struct {
	client Client
	bucket string
	key    string
	size   int64
	ctrl   *resource.Controller
}

func (b *blob) Size() int64 { return b.size }

func (b *blob) Close() error { return nil }

// ReadAt implements blobstore.Blob with a ranged GetObject per call.
func (b *blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.Reader(resp.Body)
	if b.ctrl != nil {
		body = resource.NewMeteredReader(ctx, body, b.ctrl)
	}

	n, err := io.ReadFull(body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Tail reads are shorter than p by construction.
		if off+int64(n) == b.size {
			return n, io.EOF
		}
		return n, err
	}

	return n, err
}
