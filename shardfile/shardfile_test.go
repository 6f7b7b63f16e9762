package shardfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnmg/pcago/core"
)

func writeSample(t *testing.T, path string) core.Shard[float64] {
	t.Helper()

	shard := core.Shard[float64]{
		Data: []float64{1, 2, 3, 4, 5, 6},
		Rows: 3,
	}
	require.NoError(t, Write(path, shard, 2))

	return shard
}

func TestWriteOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank0.pcsh")
	want := writeSample(t, path)

	f, err := Open[float64](path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, 3, f.Rows())
	assert.Equal(t, 2, f.Cols())

	shard := f.Shard()
	assert.Equal(t, want.Rows, shard.Rows)
	assert.Equal(t, want.Data, shard.Data)
	assert.Equal(t, []float64{3, 4}, shard.Row(1, 2))

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestWriteCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "rank0.pcsh")
	writeSample(t, path)

	f, err := Open[float64](path)
	require.NoError(t, err)
	f.Close()
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, filepath.Join(dir, "rank0.pcsh"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rank0.pcsh", entries[0].Name())
}

func TestWriteValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pcsh")

	err := Write(path, core.Shard[float64]{Data: []float64{1, 2}, Rows: 1}, 0)
	assert.ErrorContains(t, err, "cols")

	err = Write(path, core.Shard[float64]{Data: []float64{1, 2, 3}, Rows: 2}, 2)
	assert.ErrorContains(t, err, "data length")

	err = Write(path, core.Shard[float64]{Rows: -1}, 2)
	assert.ErrorContains(t, err, "rows")
}

func TestEmptyShard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pcsh")
	require.NoError(t, Write(path, core.Shard[float64]{}, 4))

	f, err := Open[float64](path)
	require.NoError(t, err)
	defer f.Close()

	assert.Zero(t, f.Rows())
	assert.Equal(t, 4, f.Cols())
	assert.Empty(t, f.Shard().Data)
}

func TestFloat32RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank0.pcsh")

	want := core.Shard[float32]{Data: []float32{1.5, -2.5, 3.25, 0}, Rows: 2}
	require.NoError(t, Write(path, want, 2))

	f, err := Open[float32](path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, want.Data, f.Shard().Data)
}

func TestDTypeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank0.pcsh")
	require.NoError(t, Write(path, core.Shard[float32]{Data: []float32{1, 2}, Rows: 1}, 2))

	_, err := Open[float64](path)
	assert.ErrorIs(t, err, ErrDTypeMismatch)
}

func TestOpenBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pcsh")
	require.NoError(t, os.WriteFile(path, []byte("not a shard file at all, promise!"), 0o644))

	_, err := Open[float64](path)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestOpenTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank0.pcsh")
	writeSample(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-8], 0o644))

	_, err = Open[float64](path)
	assert.ErrorIs(t, err, ErrTruncated)

	require.NoError(t, os.WriteFile(path, data[:8], 0o644))

	_, err = Open[float64](path)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestOpenUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank0.pcsh")
	writeSample(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[4] = 99
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open[float64](path)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestStat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rank0.pcsh")
	writeSample(t, path)

	info, err := Stat(path)
	require.NoError(t, err)
	assert.Equal(t, Info{Version: 1, DType: "float64", Rows: 3, Cols: 2}, info)
}

func TestStatMissing(t *testing.T) {
	_, err := Stat(filepath.Join(t.TempDir(), "nope.pcsh"))
	assert.Error(t, err)
}
