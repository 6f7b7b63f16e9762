// Package shardfile stores shard matrices on disk in a mmap-friendly layout,
// so a rank can feed fit and transform straight from the page cache without
// copying rows onto the heap.
//
// File layout (little-endian):
//
//	[0:4]   magic "PCSH"
//	[4:6]   format version
//	[6]     dtype (1 = float32, 2 = float64)
//	[7]     reserved
//	[8:16]  rows
//	[16:24] cols
//	[24:32] reserved
//	[32:]   row-major values
//
// The header is 32 bytes so the payload stays 8-byte aligned in the mapping.
package shardfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/internal/conv"
	"github.com/mnmg/pcago/internal/floats"
	"github.com/mnmg/pcago/internal/mmap"
)

const (
	headerSize = 32
	version    = uint16(1)

	dtypeFloat32 = uint8(1)
	dtypeFloat64 = uint8(2)
)

var magic = [4]byte{'P', 'C', 'S', 'H'}

var (
	// ErrBadMagic is returned when the file does not start with the shard
	// magic.
	ErrBadMagic = errors.New("shardfile: bad magic")
	// ErrVersion is returned for files written by an unknown format
	// version.
	ErrVersion = errors.New("shardfile: unsupported version")
	// ErrTruncated is returned when the file size does not match the
	// header dimensions.
	ErrTruncated = errors.New("shardfile: truncated file")
	// ErrDTypeMismatch is returned when the on-disk dtype differs from
	// the requested element type.
	ErrDTypeMismatch = errors.New("shardfile: dtype mismatch")
)

func dtypeOf[T core.Float]() uint8 {
	var z T
	if unsafe.Sizeof(z) == 4 {
		return dtypeFloat32
	}
	return dtypeFloat64
}

func dtypeName(dt uint8) string {
	switch dt {
	case dtypeFloat32:
		return "float32"
	case dtypeFloat64:
		return "float64"
	default:
		return fmt.Sprintf("dtype(%d)", dt)
	}
}

func dtypeSize(dt uint8) int {
	if dt == dtypeFloat32 {
		return 4
	}
	return 8
}

// Write stores shard as a shard file at path, creating parent directories as
// needed. The write is atomic: the file appears complete or not at all.
func Write[T core.Float](path string, shard core.Shard[T], cols int) error {
	if cols <= 0 {
		return fmt.Errorf("shardfile: cols must be positive, got %d", cols)
	}
	if shard.Rows < 0 {
		return fmt.Errorf("shardfile: rows must be non-negative, got %d", shard.Rows)
	}
	if len(shard.Data) != shard.Rows*cols {
		return fmt.Errorf("shardfile: data length %d does not match %d x %d", len(shard.Data), shard.Rows, cols)
	}

	rows, err := conv.IntToUint64(shard.Rows)
	if err != nil {
		return fmt.Errorf("shardfile: %w", err)
	}
	ncols, err := conv.IntToUint64(cols)
	if err != nil {
		return fmt.Errorf("shardfile: %w", err)
	}

	var header [headerSize]byte
	copy(header[0:4], magic[:])
	binary.LittleEndian.PutUint16(header[4:6], version)
	header[6] = dtypeOf[T]()
	binary.LittleEndian.PutUint64(header[8:16], rows)
	binary.LittleEndian.PutUint64(header[16:24], ncols)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("shardfile: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".shard-*")
	if err != nil {
		return fmt.Errorf("shardfile: create temp file: %w", err)
	}

	if err := writeFile(tmp, header[:], floats.AsBytes(shard.Data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("shardfile: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("shardfile: rename: %w", err)
	}

	return nil
}

func writeFile(f *os.File, header, payload []byte) error {
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("shardfile: write header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("shardfile: write payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("shardfile: sync: %w", err)
	}

	return nil
}

// File is a read-only memory-mapped shard matrix.
type File[T core.Float] struct {
	m    *mmap.Mapping
	data []T
	rows int
	cols int
}

// Open maps the shard file at path. The returned shard aliases the mapping,
// so it is only valid until Close.
func Open[T core.Float](path string) (*File[T], error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	f, err := parse[T](m)
	if err != nil {
		m.Close()
		return nil, err
	}

	// Fit and transform scan rows front to back.
	_ = m.Advise(mmap.AccessSequential)

	return f, nil
}

func parse[T core.Float](m *mmap.Mapping) (*File[T], error) {
	b := m.Bytes()
	if len(b) < headerSize {
		return nil, ErrTruncated
	}

	if [4]byte(b[0:4]) != magic {
		return nil, ErrBadMagic
	}

	if v := binary.LittleEndian.Uint16(b[4:6]); v != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	dt := b[6]
	if dt != dtypeFloat32 && dt != dtypeFloat64 {
		return nil, fmt.Errorf("%w: %s", ErrDTypeMismatch, dtypeName(dt))
	}
	if want := dtypeOf[T](); dt != want {
		return nil, fmt.Errorf("%w: file holds %s, requested %s", ErrDTypeMismatch, dtypeName(dt), dtypeName(want))
	}

	rows, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(b[8:16]))
	if err != nil {
		return nil, fmt.Errorf("shardfile: %w", err)
	}
	cols, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(b[16:24]))
	if err != nil {
		return nil, fmt.Errorf("shardfile: %w", err)
	}

	esize := dtypeSize(dt)
	if cols != 0 && rows > math.MaxInt/cols {
		return nil, fmt.Errorf("%w: %d x %d overflows", ErrTruncated, rows, cols)
	}
	elems := rows * cols
	if elems != 0 && elems > (math.MaxInt-headerSize)/esize {
		return nil, fmt.Errorf("%w: %d x %d overflows", ErrTruncated, rows, cols)
	}

	if len(b) != headerSize+elems*esize {
		return nil, fmt.Errorf("%w: have %d bytes, header says %d", ErrTruncated, len(b), headerSize+elems*esize)
	}

	data, err := floats.ViewAs[T](b[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("shardfile: %w", err)
	}

	return &File[T]{m: m, data: data, rows: rows, cols: cols}, nil
}

// Shard returns the mapped matrix. It aliases the mapping and must not be
// used after Close.
func (f *File[T]) Shard() core.Shard[T] {
	return core.Shard[T]{Data: f.data, Rows: f.rows}
}

// Rows returns the number of rows.
func (f *File[T]) Rows() int {
	return f.rows
}

// Cols returns the number of columns.
func (f *File[T]) Cols() int {
	return f.cols
}

// Close unmaps the file. It is idempotent.
func (f *File[T]) Close() error {
	return f.m.Close()
}

// Info describes a shard file without loading its payload.
type Info struct {
	Version uint16
	DType   string
	Rows    int
	Cols    int
}

// Stat reads the header of the shard file at path.
func Stat(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return Info{}, ErrTruncated
	}

	if [4]byte(header[0:4]) != magic {
		return Info{}, ErrBadMagic
	}

	v := binary.LittleEndian.Uint16(header[4:6])
	if v != version {
		return Info{}, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	dt := header[6]
	if dt != dtypeFloat32 && dt != dtypeFloat64 {
		return Info{}, fmt.Errorf("%w: %s", ErrDTypeMismatch, dtypeName(dt))
	}

	rows, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(header[8:16]))
	if err != nil {
		return Info{}, fmt.Errorf("shardfile: %w", err)
	}
	cols, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(header[16:24]))
	if err != nil {
		return Info{}, fmt.Errorf("shardfile: %w", err)
	}

	return Info{Version: v, DType: dtypeName(dt), Rows: rows, Cols: cols}, nil
}
