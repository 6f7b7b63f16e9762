// Package partition describes how a row-major dataset is split across ranks.
//
// A Descriptor is derived from an ordered list of (rank, row count) pairs
// plus the global column count. The pair order defines the canonical global
// row ordering and must be identical on every participating rank; collectives
// silently corrupt results otherwise. Everything the descriptor can check is
// checked locally, before any collective is issued, so a misconfigured rank
// fails fast instead of deadlocking the cluster.
package partition

import (
	"errors"
	"fmt"

	"github.com/mnmg/pcago/core"
)

var (
	// ErrEmptyDescriptor is returned when no rank sizes are given.
	ErrEmptyDescriptor = errors.New("no rank sizes")
	// ErrDuplicateRank is returned when a rank id appears twice.
	ErrDuplicateRank = errors.New("duplicate rank id")
	// ErrNegativeRows is returned for a negative row count.
	ErrNegativeRows = errors.New("negative row count")
	// ErrInvalidColumns is returned when the column count is not positive.
	ErrInvalidColumns = errors.New("column count must be positive")
	// ErrNoRows is returned when the descriptor covers zero rows in total.
	ErrNoRows = errors.New("descriptor covers zero rows")
	// ErrUnknownRank is returned for lookups of ranks not in the descriptor.
	ErrUnknownRank = errors.New("rank not in descriptor")
)

// ErrShardRows indicates that a rank's shards do not add up to the row count
// the descriptor assigns to it.
type ErrShardRows struct {
	Rank     int
	Expected int
	Actual   int
}

func (e *ErrShardRows) Error() string {
	return fmt.Sprintf("rank %d shards hold %d rows, descriptor assigns %d", e.Rank, e.Actual, e.Expected)
}

// ErrShardData indicates that a shard's backing slice does not match its
// declared shape.
type ErrShardData struct {
	Shard    int
	Expected int
	Actual   int
}

func (e *ErrShardData) Error() string {
	return fmt.Sprintf("shard %d holds %d values, shape requires %d", e.Shard, e.Actual, e.Expected)
}

// RankSize pairs a rank id with the number of rows that rank owns.
type RankSize struct {
	Rank int
	Rows int
}

// Descriptor is the immutable partition layout of the global dataset.
type Descriptor struct {
	pairs  []RankSize
	cols   int
	total  int
	offset map[int]int
	rows   map[int]int
}

// NewDescriptor builds a Descriptor from an ordered list of rank sizes and
// the global column count. The input slice is copied.
func NewDescriptor(pairs []RankSize, cols int) (*Descriptor, error) {
	if len(pairs) == 0 {
		return nil, ErrEmptyDescriptor
	}

	if cols <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidColumns, cols)
	}

	d := &Descriptor{
		pairs:  make([]RankSize, len(pairs)),
		cols:   cols,
		offset: make(map[int]int, len(pairs)),
		rows:   make(map[int]int, len(pairs)),
	}
	copy(d.pairs, pairs)

	for _, p := range d.pairs {
		if p.Rows < 0 {
			return nil, fmt.Errorf("%w: rank %d owns %d rows", ErrNegativeRows, p.Rank, p.Rows)
		}

		if _, dup := d.rows[p.Rank]; dup {
			return nil, fmt.Errorf("%w: rank %d", ErrDuplicateRank, p.Rank)
		}

		d.offset[p.Rank] = d.total
		d.rows[p.Rank] = p.Rows
		d.total += p.Rows
	}

	if d.total == 0 {
		return nil, ErrNoRows
	}

	return d, nil
}

// TotalRows returns the global row count.
func (d *Descriptor) TotalRows() int { return d.total }

// Cols returns the global column count.
func (d *Descriptor) Cols() int { return d.cols }

// Ranks returns the number of participating ranks.
func (d *Descriptor) Ranks() int { return len(d.pairs) }

// RankSizes returns a copy of the ordered (rank, rows) pairs.
func (d *Descriptor) RankSizes() []RankSize {
	out := make([]RankSize, len(d.pairs))
	copy(out, d.pairs)

	return out
}

// RowsOf returns the row count assigned to rank.
func (d *Descriptor) RowsOf(rank int) (int, bool) {
	n, ok := d.rows[rank]

	return n, ok
}

// OffsetOf returns rank's row offset into the global row space.
func (d *Descriptor) OffsetOf(rank int) (int, bool) {
	off, ok := d.offset[rank]

	return off, ok
}

// ValidateShards checks that the shards a rank supplies match the rows the
// descriptor assigns to it and that every shard's backing slice matches its
// declared shape. Runs entirely locally.
func ValidateShards[T core.Float](d *Descriptor, rank int, shards []core.Shard[T]) error {
	want, ok := d.RowsOf(rank)
	if !ok {
		return fmt.Errorf("%w: rank %d", ErrUnknownRank, rank)
	}

	total := 0

	for i, s := range shards {
		if s.Rows < 0 {
			return fmt.Errorf("%w: shard %d declares %d rows", ErrNegativeRows, i, s.Rows)
		}

		if len(s.Data) != s.Rows*d.cols {
			return &ErrShardData{Shard: i, Expected: s.Rows * d.cols, Actual: len(s.Data)}
		}

		total += s.Rows
	}

	if total != want {
		return &ErrShardRows{Rank: rank, Expected: want, Actual: total}
	}

	return nil
}
