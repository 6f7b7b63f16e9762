package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"unsafe"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mnmg/pcago/codec"
	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/internal/conv"
)

// Snapshot layout, little-endian:
//
//	[4]  magic "PCM1"
//	[2]  format version
//	[2]  flags, reserved
//	[1]  dtype (1 = float32, 2 = float64)
//	[1]  compression (0 = none, 1 = lz4, 2 = zstd)
//	[1]  codec name length m
//	[5]  reserved
//	[m]  codec name
//	[4]  uncompressed payload size
//	[4]  compressed payload size, 0 when stored raw
//	[..] payload
//	[4]  CRC32 (IEEE) over everything above
//
// The header is self-describing: loading picks the codec and compression
// back by what the file says, not by what the writer was configured with.
var snapshotMagic = [4]byte{'P', 'C', 'M', '1'}

const (
	snapshotVersion  = uint16(1)
	snapshotFixedLen = 16
	blockHeaderLen   = 8
	checksumLen      = 4
)

const (
	dtypeFloat32 = uint8(1)
	dtypeFloat64 = uint8(2)
)

var (
	// ErrBadMagic is returned when the bytes are not a model snapshot.
	ErrBadMagic = errors.New("snapshot: invalid magic")

	// ErrVersion is returned for snapshot versions this build cannot read.
	ErrVersion = errors.New("snapshot: unsupported version")

	// ErrTruncated is returned when the snapshot is shorter than its
	// framing requires.
	ErrTruncated = errors.New("snapshot: truncated")

	// ErrChecksum is returned when the trailer CRC does not match the
	// bytes. The snapshot was corrupted in storage or transit.
	ErrChecksum = errors.New("snapshot: checksum mismatch")

	// ErrDTypeMismatch is returned when loading a snapshot into a model of
	// the wrong element type.
	ErrDTypeMismatch = errors.New("snapshot: element type mismatch")

	// ErrUnknownCodec is returned when the recorded codec is not built in.
	ErrUnknownCodec = errors.New("snapshot: unknown codec")

	// ErrUnknownCompression is returned for unrecognized compression ids.
	ErrUnknownCompression = errors.New("snapshot: unknown compression")
)

// Compression selects how the snapshot payload is packed.
type Compression uint8

const (
	// CompressionNone stores the payload raw.
	CompressionNone Compression = 0
	// CompressionLZ4 favors fast loads.
	CompressionLZ4 Compression = 1
	// CompressionZSTD favors small artifacts.
	CompressionZSTD Compression = 2
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a name to its Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// Info describes a snapshot without decoding its payload.
type Info struct {
	Version     uint16
	DType       string
	Codec       string
	Compression Compression
	PayloadSize int
}

func dtypeOf[T core.Float]() uint8 {
	var z T
	if unsafe.Sizeof(z) == 4 {
		return dtypeFloat32
	}
	return dtypeFloat64
}

func dtypeName(b uint8) string {
	switch b {
	case dtypeFloat32:
		return "float32"
	case dtypeFloat64:
		return "float64"
	default:
		return fmt.Sprintf("dtype(%d)", b)
	}
}

// Encode serializes the model into one self-describing byte blob. A nil
// codec falls back to codec.Default.
func Encode[T core.Float](m *Model[T], c codec.Codec, comp Compression) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = codec.Default
	}
	if comp > CompressionZSTD {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, comp)
	}

	name := c.Name()
	if len(name) == 0 || len(name) > 255 {
		return nil, fmt.Errorf("%w: codec name %q", ErrUnknownCodec, name)
	}

	raw, err := c.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal payload: %w", err)
	}

	block, err := compress(raw, comp)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, snapshotFixedLen+len(name)+len(block)+checksumLen)
	buf = append(buf, snapshotMagic[:]...)

	var fixed [12]byte
	binary.LittleEndian.PutUint16(fixed[0:2], snapshotVersion)
	// fixed[2:4] flags, reserved
	fixed[4] = dtypeOf[T]()
	fixed[5] = uint8(comp)
	fixed[6] = uint8(len(name))
	// fixed[7:12] reserved
	buf = append(buf, fixed[:]...)
	buf = append(buf, name...)
	buf = append(buf, block...)

	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(buf))
	buf = append(buf, crc[:]...)

	return buf, nil
}

// Decode parses and verifies a snapshot produced by Encode. The element type
// must match the one recorded in the header.
func Decode[T core.Float](data []byte) (*Model[T], error) {
	body, hdr, err := verify(data)
	if err != nil {
		return nil, err
	}

	if hdr.dtype != dtypeOf[T]() {
		return nil, fmt.Errorf("%w: snapshot holds %s", ErrDTypeMismatch, dtypeName(hdr.dtype))
	}

	c, ok := codec.ByName(hdr.codec)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, hdr.codec)
	}

	raw, err := decompress(body, hdr.compression)
	if err != nil {
		return nil, err
	}

	var m Model[T]
	if err := c.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal payload: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Write encodes the model and writes the snapshot to w.
func Write[T core.Float](w io.Writer, m *Model[T], c codec.Codec, comp Compression) error {
	data, err := Encode(m, c, comp)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("snapshot: write: %w", err)
	}
	return nil
}

// Read consumes r to its end and decodes the snapshot. The checksum spans
// the whole stream, so the reader must deliver exactly one snapshot.
func Read[T core.Float](r io.Reader) (*Model[T], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}
	return Decode[T](data)
}

// Sniff reads the snapshot header and verifies the checksum without decoding
// the payload.
func Sniff(data []byte) (Info, error) {
	body, hdr, err := verify(data)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Version:     hdr.version,
		DType:       dtypeName(hdr.dtype),
		Codec:       hdr.codec,
		Compression: hdr.compression,
		PayloadSize: len(body),
	}, nil
}

type header struct {
	version     uint16
	dtype       uint8
	compression Compression
	codec       string
}

// verify checks framing and CRC and returns the payload block.
func verify(data []byte) ([]byte, header, error) {
	if len(data) < snapshotFixedLen+checksumLen {
		return nil, header{}, ErrTruncated
	}
	if [4]byte(data[:4]) != snapshotMagic {
		return nil, header{}, ErrBadMagic
	}

	want := binary.LittleEndian.Uint32(data[len(data)-checksumLen:])
	got := crc32.ChecksumIEEE(data[:len(data)-checksumLen])
	if want != got {
		return nil, header{}, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, want, got)
	}

	version := binary.LittleEndian.Uint16(data[4:6])
	if version != snapshotVersion {
		return nil, header{}, fmt.Errorf("%w: %d", ErrVersion, version)
	}

	hdr := header{
		version:     version,
		dtype:       data[8],
		compression: Compression(data[9]),
	}

	nameLen := int(data[10])
	if len(data) < snapshotFixedLen+nameLen+blockHeaderLen+checksumLen {
		return nil, header{}, ErrTruncated
	}
	hdr.codec = string(data[snapshotFixedLen : snapshotFixedLen+nameLen])

	body := data[snapshotFixedLen+nameLen : len(data)-checksumLen]

	return body, hdr, nil
}

// compress frames raw as [uncompressed size][compressed size]{payload}. A
// compressed size of zero marks a raw payload, used when compression does
// not shrink the bytes.
func compress(raw []byte, comp Compression) ([]byte, error) {
	size, err := conv.IntToUint32(len(raw))
	if err != nil {
		return nil, fmt.Errorf("snapshot: payload too large: %w", err)
	}

	var packed []byte
	switch comp {
	case CompressionNone:
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(raw))
		dst := make([]byte, bound)
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: lz4 compress: %w", err)
		}
		if n > 0 {
			packed = dst[:n]
		}
	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd encoder: %w", err)
		}
		packed = enc.EncodeAll(raw, nil)
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, comp)
	}

	if len(packed) == 0 || len(packed) >= len(raw) {
		packed = nil
	}

	out := make([]byte, blockHeaderLen, blockHeaderLen+len(raw))
	binary.LittleEndian.PutUint32(out[0:4], size)

	if packed == nil {
		// compressed size 0 marks raw storage
		return append(out, raw...), nil
	}

	binary.LittleEndian.PutUint32(out[4:8], uint32(len(packed)))

	return append(out, packed...), nil
}

func decompress(block []byte, comp Compression) ([]byte, error) {
	if len(block) < blockHeaderLen {
		return nil, ErrTruncated
	}

	rawSize := int(binary.LittleEndian.Uint32(block[0:4]))
	packedSize := int(binary.LittleEndian.Uint32(block[4:8]))
	body := block[blockHeaderLen:]

	if packedSize == 0 {
		if len(body) != rawSize {
			return nil, ErrTruncated
		}
		return body, nil
	}

	if len(body) != packedSize {
		return nil, ErrTruncated
	}

	switch comp {
	case CompressionLZ4:
		raw := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot: lz4 decompress: %w", err)
		}
		if n != rawSize {
			return nil, ErrTruncated
		}
		return raw, nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd decoder: %w", err)
		}
		defer dec.Close()

		raw, err := dec.DecodeAll(body, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd decompress: %w", err)
		}
		if len(raw) != rawSize {
			return nil, ErrTruncated
		}
		return raw, nil
	case CompressionNone:
		// Writers never pack under CompressionNone.
		return nil, ErrTruncated
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, comp)
	}
}
