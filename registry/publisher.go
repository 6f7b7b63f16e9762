package registry

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/mnmg/pcago/blobstore"
	"github.com/mnmg/pcago/codec"
)

const catalogExt = ".cat"

// Option configures a Registry.
type Option func(*Registry)

// WithCodec sets the codec used to encode catalog revisions. Defaults to
// codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(r *Registry) {
		r.codec = c
	}
}

// WithPrefix sets the blob key prefix for catalog revisions. Defaults to
// "registry".
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// Registry publishes and resolves entries against a shared blob store.
//
// Every mutation writes a complete catalog snapshot under a fresh revision
// key, then advances the commit pointer. Readers always load the committed
// revision, so a half-finished publish is never observed; a lost
// compare-and-swap surfaces as ErrConcurrentCommit and leaves only an
// orphaned catalog blob behind.
type Registry struct {
	blobs   blobstore.Store
	commits CommitStore
	codec   codec.Codec
	prefix  string
}

// New creates a registry over the given blob and commit stores.
func New(blobs blobstore.Store, commits CommitStore, optFns ...Option) *Registry {
	r := &Registry{
		blobs:   blobs,
		commits: commits,
		codec:   codec.Default,
		prefix:  "registry",
	}

	for _, fn := range optFns {
		fn(r)
	}

	return r
}

// Publish adds an entry to the catalog and commits the new revision. A zero
// CreatedAt is filled with the current time. On ErrConcurrentCommit the
// catalog is unchanged and the caller may retry.
func (r *Registry) Publish(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	version, cat, err := r.load(ctx)
	if err != nil {
		return err
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	if err := cat.Add(e); err != nil {
		return err
	}

	return r.persist(ctx, version+1, cat)
}

// Remove deletes an entry from the catalog and commits the new revision.
// It returns ErrNoEntry when the entry does not exist.
func (r *Registry) Remove(ctx context.Context, name, version string) error {
	current, cat, err := r.load(ctx)
	if err != nil {
		return err
	}

	if !cat.Remove(name, version) {
		return fmt.Errorf("%w: %s/%s", ErrNoEntry, name, version)
	}

	return r.persist(ctx, current+1, cat)
}

// Current loads the committed catalog. An empty catalog is returned before
// the first publish.
func (r *Registry) Current(ctx context.Context) (*Catalog, error) {
	_, cat, err := r.load(ctx)
	return cat, err
}

// Find loads the committed catalog and returns the entries matching f.
func (r *Registry) Find(ctx context.Context, f Filter) ([]Entry, error) {
	cat, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}

	return cat.Find(f), nil
}

// Resolve loads the committed catalog and resolves name at version. An
// empty version selects the latest entry for name.
func (r *Registry) Resolve(ctx context.Context, name, version string) (Entry, error) {
	cat, err := r.Current(ctx)
	if err != nil {
		return Entry{}, err
	}

	return cat.Resolve(name, version)
}

// catalogState is the persisted form of a catalog revision. The indexes are
// rebuilt on load, so entries are the only source of truth.
type catalogState struct {
	Entries []Entry `json:"entries"`
}

func (r *Registry) catalogKey(version uint64) string {
	return path.Join(r.prefix, fmt.Sprintf("%016d%s", version, catalogExt))
}

func (r *Registry) load(ctx context.Context) (uint64, *Catalog, error) {
	version, key, err := r.commits.Current(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("registry: read current commit: %w", err)
	}

	cat := NewCatalog()
	if version == 0 {
		return 0, cat, nil
	}

	data, err := blobstore.ReadAll(ctx, r.blobs, key)
	if err != nil {
		return 0, nil, fmt.Errorf("registry: read catalog %q: %w", key, err)
	}

	var state catalogState
	if err := r.codec.Unmarshal(data, &state); err != nil {
		return 0, nil, fmt.Errorf("registry: decode catalog %q: %w", key, err)
	}

	for _, e := range state.Entries {
		if err := cat.Add(e); err != nil {
			return 0, nil, fmt.Errorf("registry: corrupt catalog %q: %w", key, err)
		}
	}

	return version, cat, nil
}

func (r *Registry) persist(ctx context.Context, version uint64, cat *Catalog) error {
	data, err := r.codec.Marshal(catalogState{Entries: cat.Entries()})
	if err != nil {
		return fmt.Errorf("registry: encode catalog: %w", err)
	}

	key := r.catalogKey(version)
	if err := r.blobs.Put(ctx, key, data); err != nil {
		return fmt.Errorf("registry: write catalog %q: %w", key, err)
	}

	return r.commits.Commit(ctx, version, key)
}
