// Package registry provides a named, versioned catalog of published model
// snapshots. Entries carry free-form tags; an inverted index of Roaring
// Bitmap posting lists answers tag queries without scanning the catalog.
//
// The catalog itself is a value: it is encoded as a single blob per revision
// and the current revision is advanced through a CommitStore, so concurrent
// publishers coordinate through compare-and-swap instead of overwriting each
// other.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrNoEntry is returned when a lookup matches no catalog entry.
	ErrNoEntry = errors.New("registry: entry not found")

	// ErrBadEntry is returned for entries with empty or slash-bearing
	// names or versions.
	ErrBadEntry = errors.New("registry: invalid entry")
)

// Entry describes one published model snapshot.
type Entry struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Key       string            `json:"key"`
	Tags      map[string]string `json:"tags,omitempty"`
	DType     string            `json:"dtype,omitempty"`
	Checksum  uint32            `json:"checksum,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (e Entry) id() string {
	return e.Name + "/" + e.Version
}

func (e Entry) validate() error {
	if e.Name == "" || strings.ContainsAny(e.Name, "/\\") {
		return fmt.Errorf("%w: name %q", ErrBadEntry, e.Name)
	}
	if e.Version == "" || strings.ContainsAny(e.Version, "/\\") {
		return fmt.Errorf("%w: version %q", ErrBadEntry, e.Version)
	}
	return nil
}

// Filter selects catalog entries. A zero Filter matches everything.
type Filter struct {
	// Name restricts matches to a single model name.
	Name string

	// Tags are tag=value constraints.
	Tags map[string]string

	// MatchAll requires every tag constraint to hold. When false, one
	// matching constraint suffices.
	MatchAll bool
}

// Catalog is an in-memory set of entries with an inverted tag index.
//
// Layout follows the usual posting-list shape:
//   - primary storage: map[uint32]Entry keyed by a dense internal id
//   - name index: name -> bitmap of ids
//   - tag index: tag -> value -> bitmap of ids
//
// All methods are safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	nextID  uint32
	entries map[uint32]Entry
	ids     map[string]uint32
	byName  map[string]*roaring.Bitmap
	byTag   map[string]map[string]*roaring.Bitmap
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: make(map[uint32]Entry),
		ids:     make(map[string]uint32),
		byName:  make(map[string]*roaring.Bitmap),
		byTag:   make(map[string]map[string]*roaring.Bitmap),
	}
}

// Add inserts an entry, replacing any existing entry with the same name and
// version.
func (c *Catalog) Add(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.ids[e.id()]
	if ok {
		c.unindexLocked(id, c.entries[id])
	} else {
		id = c.nextID
		c.nextID++
		c.ids[e.id()] = id
	}

	c.entries[id] = e
	c.indexLocked(id, e)

	return nil
}

// Get returns the entry for name at version.
func (c *Catalog) Get(name, version string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.ids[name+"/"+version]
	if !ok {
		return Entry{}, false
	}

	return c.entries[id], true
}

// Remove deletes the entry for name at version. It reports whether an entry
// was removed.
func (c *Catalog) Remove(name, version string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := name + "/" + version
	id, ok := c.ids[key]
	if !ok {
		return false
	}

	c.unindexLocked(id, c.entries[id])
	delete(c.entries, id)
	delete(c.ids, key)

	return true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Entries returns all entries sorted by name, then version.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entriesLocked()
}

func (c *Catalog) entriesLocked() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sortEntries(out)

	return out
}

// Find returns the entries matching f, sorted by name then version. A zero
// filter returns every entry.
func (c *Catalog) Find(f Filter) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result *roaring.Bitmap

	if len(f.Tags) > 0 {
		result = roaring.New()
		first := true
		for key, value := range f.Tags {
			posting := c.tagBitmapLocked(key, value)
			if f.MatchAll {
				if posting == nil {
					return nil
				}
				if first {
					result.Or(posting)
				} else {
					result.And(posting)
				}
				if result.IsEmpty() {
					return nil
				}
			} else if posting != nil {
				result.Or(posting)
			}
			first = false
		}
	}

	if f.Name != "" {
		names, ok := c.byName[f.Name]
		if !ok {
			return nil
		}
		if result == nil {
			result = names.Clone()
		} else {
			result.And(names)
		}
	}

	if result == nil {
		return c.entriesLocked()
	}

	out := make([]Entry, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		if e, ok := c.entries[it.Next()]; ok {
			out = append(out, e)
		}
	}
	sortEntries(out)

	return out
}

// Resolve returns the entry for name at version. An empty version selects
// the latest entry for name: the most recent CreatedAt, with ties broken by
// the higher version string.
func (c *Catalog) Resolve(name, version string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if version != "" {
		id, ok := c.ids[name+"/"+version]
		if !ok {
			return Entry{}, fmt.Errorf("%w: %s/%s", ErrNoEntry, name, version)
		}
		return c.entries[id], nil
	}

	names, ok := c.byName[name]
	if !ok || names.IsEmpty() {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoEntry, name)
	}

	var best Entry
	found := false

	it := names.Iterator()
	for it.HasNext() {
		e := c.entries[it.Next()]
		if !found || e.CreatedAt.After(best.CreatedAt) ||
			(e.CreatedAt.Equal(best.CreatedAt) && e.Version > best.Version) {
			best = e
			found = true
		}
	}

	if !found {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoEntry, name)
	}

	return best, nil
}

// Stats summarizes catalog size and index footprint.
type Stats struct {
	Entries      int
	Names        int
	TagKeys      int
	PostingLists int
	IndexBytes   uint64
}

// GetStats returns statistics about the catalog and its indexes.
func (c *Catalog) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Entries: len(c.entries),
		Names:   len(c.byName),
		TagKeys: len(c.byTag),
	}

	for _, bm := range c.byName {
		stats.PostingLists++
		stats.IndexBytes += bm.GetSizeInBytes()
	}
	for _, values := range c.byTag {
		for _, bm := range values {
			stats.PostingLists++
			stats.IndexBytes += bm.GetSizeInBytes()
		}
	}

	return stats
}

// indexLocked adds an entry to the name and tag indexes. Caller must hold
// c.mu.Lock().
func (c *Catalog) indexLocked(id uint32, e Entry) {
	names, ok := c.byName[e.Name]
	if !ok {
		names = roaring.New()
		c.byName[e.Name] = names
	}
	names.Add(id)

	for key, value := range e.Tags {
		values, ok := c.byTag[key]
		if !ok {
			values = make(map[string]*roaring.Bitmap)
			c.byTag[key] = values
		}

		posting, ok := values[value]
		if !ok {
			posting = roaring.New()
			values[value] = posting
		}

		posting.Add(id)
	}
}

// unindexLocked removes an entry from the name and tag indexes, dropping
// posting lists that become empty. Caller must hold c.mu.Lock().
func (c *Catalog) unindexLocked(id uint32, e Entry) {
	if names, ok := c.byName[e.Name]; ok {
		names.Remove(id)
		if names.IsEmpty() {
			delete(c.byName, e.Name)
		}
	}

	for key, value := range e.Tags {
		values, ok := c.byTag[key]
		if !ok {
			continue
		}

		posting, ok := values[value]
		if !ok {
			continue
		}

		posting.Remove(id)

		if posting.IsEmpty() {
			delete(values, value)
			if len(values) == 0 {
				delete(c.byTag, key)
			}
		}
	}
}

// tagBitmapLocked returns the posting list for a tag=value pair, or nil when
// no entry carries it. Caller must hold c.mu.RLock().
func (c *Catalog) tagBitmapLocked(key, value string) *roaring.Bitmap {
	values, ok := c.byTag[key]
	if !ok {
		return nil
	}

	return values[value]
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Version < entries[j].Version
	})
}
