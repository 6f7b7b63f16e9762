package model

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/mnmg/pcago/blobstore"
	"github.com/mnmg/pcago/codec"
	"github.com/mnmg/pcago/core"
)

// snapshotExt is the artifact suffix for serialized models.
const snapshotExt = ".pcm"

// ErrBadName is returned for empty names or names containing separators.
var ErrBadName = errors.New("model name and version must be non-empty and slash free")

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	codec       codec.Codec
	compression Compression
	prefix      string
}

// WithCodec sets the payload codec for new snapshots.
func WithCodec(c codec.Codec) StoreOption {
	return func(o *storeOptions) {
		o.codec = c
	}
}

// WithCompression sets the payload compression for new snapshots.
func WithCompression(c Compression) StoreOption {
	return func(o *storeOptions) {
		o.compression = c
	}
}

// WithPrefix namespaces all snapshots under the given key prefix.
func WithPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		o.prefix = prefix
	}
}

// Store persists models as versioned snapshots: one artifact per
// name/version pair. Loading is codec and compression agnostic because
// snapshots are self-describing; the store options only shape new writes.
type Store[T core.Float] struct {
	blobs blobstore.Store
	opts  storeOptions
}

// NewStore returns a snapshot store over the given artifact store.
func NewStore[T core.Float](blobs blobstore.Store, optFns ...StoreOption) *Store[T] {
	opts := storeOptions{
		codec:       codec.Default,
		compression: CompressionZSTD,
		prefix:      "models",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store[T]{blobs: blobs, opts: opts}
}

func checkPart(s string) error {
	if s == "" || strings.ContainsAny(s, "/\\") {
		return fmt.Errorf("%w: %q", ErrBadName, s)
	}
	return nil
}

func (s *Store[T]) key(name, version string) string {
	return path.Join(s.opts.prefix, name, version+snapshotExt)
}

// Save encodes and writes one model version. Existing versions are
// overwritten; pick monotonically increasing versions to keep history.
func (s *Store[T]) Save(ctx context.Context, name, version string, m *Model[T]) error {
	if err := checkPart(name); err != nil {
		return err
	}
	if err := checkPart(version); err != nil {
		return err
	}

	data, err := Encode(m, s.opts.codec, s.opts.compression)
	if err != nil {
		return err
	}

	return s.blobs.Put(ctx, s.key(name, version), data)
}

// Load reads and verifies one model version.
func (s *Store[T]) Load(ctx context.Context, name, version string) (*Model[T], error) {
	if err := checkPart(name); err != nil {
		return nil, err
	}
	if err := checkPart(version); err != nil {
		return nil, err
	}

	data, err := blobstore.ReadAll(ctx, s.blobs, s.key(name, version))
	if err != nil {
		return nil, err
	}

	return Decode[T](data)
}

// Delete removes one model version. Missing versions are not an error.
func (s *Store[T]) Delete(ctx context.Context, name, version string) error {
	if err := checkPart(name); err != nil {
		return err
	}
	if err := checkPart(version); err != nil {
		return err
	}

	return s.blobs.Delete(ctx, s.key(name, version))
}

// Versions lists the stored versions of a model, sorted.
func (s *Store[T]) Versions(ctx context.Context, name string) ([]string, error) {
	if err := checkPart(name); err != nil {
		return nil, err
	}

	prefix := path.Join(s.opts.prefix, name) + "/"

	keys, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	versions := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.TrimPrefix(k, prefix)
		if !strings.HasSuffix(v, snapshotExt) || strings.Contains(v, "/") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(v, snapshotExt))
	}

	sort.Strings(versions)

	return versions, nil
}
