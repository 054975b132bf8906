package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCodec is returned when a value cannot be represented in a codec's
// fixed width, either because it is too wide or because a decode target
// is malformed.
var ErrCodec = errors.New("codec: value does not fit fixed width encoding")

// KeyCodec encodes and decodes tree keys to a fixed-width byte
// representation. Byte-order of Encode's output must reflect the value's
// natural ordering, since the tree compares keys with bytes.Compare.
type KeyCodec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
	Size() int
}

// DataCodec encodes and decodes leaf payloads to a fixed-width byte
// representation. Unlike KeyCodec, ordering doesn't matter here.
type DataCodec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
	Size() int
}

// StringCodec encodes strings into a fixed width, right-padded with zero
// bytes. Padding with zero (rather than space) keeps Encode
// order-preserving for same-length-or-shorter ASCII strings, since 0x00
// sorts below every printable byte.
type StringCodec struct {
	width int
}

// NewStringCodec returns a StringCodec for strings up to width bytes.
func NewStringCodec(width int) *StringCodec {
	return &StringCodec{width: width}
}

func (c *StringCodec) Size() int { return c.width }

func (c *StringCodec) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: StringCodec.Encode expects a string, got %T", ErrCodec, v)
	}
	if len(s) > c.width {
		return nil, fmt.Errorf("%w: string of %d bytes exceeds width %d", ErrCodec, len(s), c.width)
	}
	buf := make([]byte, c.width)
	copy(buf, s)
	return buf, nil
}

func (c *StringCodec) Decode(b []byte) (any, error) {
	if len(b) != c.width {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCodec, c.width, len(b))
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), nil
}

// Uint64Codec encodes uint64 values big-endian in a fixed 8 bytes, so
// byte comparison matches numeric comparison.
type Uint64Codec struct{}

// NewUint64Codec returns a Uint64Codec.
func NewUint64Codec() *Uint64Codec { return &Uint64Codec{} }

func (c *Uint64Codec) Size() int { return 8 }

func (c *Uint64Codec) Encode(v any) ([]byte, error) {
	n, ok := toUint64(v)
	if !ok {
		return nil, fmt.Errorf("%w: Uint64Codec.Encode expects an unsigned integer, got %T", ErrCodec, v)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf, nil
}

func (c *Uint64Codec) Decode(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("%w: expected 8 bytes, got %d", ErrCodec, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

// BytesCodec stores a raw fixed-width byte slice verbatim, left-padded
// with zeros if shorter. Used where the value being indexed is itself
// already a fixed-width identifier — a heap-file position, for instance.
type BytesCodec struct {
	width int
}

// NewBytesCodec returns a BytesCodec for payloads up to width bytes.
func NewBytesCodec(width int) *BytesCodec {
	return &BytesCodec{width: width}
}

func (c *BytesCodec) Size() int { return c.width }

func (c *BytesCodec) Encode(v any) ([]byte, error) {
	raw, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: BytesCodec.Encode expects []byte, got %T", ErrCodec, v)
	}
	if len(raw) > c.width {
		return nil, fmt.Errorf("%w: %d bytes exceeds width %d", ErrCodec, len(raw), c.width)
	}
	buf := make([]byte, c.width)
	copy(buf[c.width-len(raw):], raw)
	return buf, nil
}

func (c *BytesCodec) Decode(b []byte) (any, error) {
	if len(b) != c.width {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCodec, c.width, len(b))
	}
	out := make([]byte, c.width)
	copy(out, b)
	return out, nil
}

// varBytesHeaderSize is the length prefix VarBytesCodec stores ahead of
// the payload.
const varBytesHeaderSize = 4

// VarBytesCodec is a DataCodec for opaque, variable-length leaf values:
// a big-endian uint32 length prefix followed by the payload, the rest of
// the fixed width zero-padded. Unlike BytesCodec, Decode returns exactly
// the bytes originally given to Encode, trimmed of padding — it is meant
// for leaf payloads (ordering never matters for a DataCodec), not keys.
type VarBytesCodec struct {
	width int
}

// NewVarBytesCodec returns a VarBytesCodec whose encoded form is exactly
// width bytes, able to hold payloads up to width-4 bytes.
func NewVarBytesCodec(width int) *VarBytesCodec {
	return &VarBytesCodec{width: width}
}

func (c *VarBytesCodec) Size() int { return c.width }

func (c *VarBytesCodec) Encode(v any) ([]byte, error) {
	raw, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: VarBytesCodec.Encode expects []byte, got %T", ErrCodec, v)
	}
	if len(raw) > c.width-varBytesHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds capacity %d", ErrCodec, len(raw), c.width-varBytesHeaderSize)
	}
	buf := make([]byte, c.width)
	binary.BigEndian.PutUint32(buf, uint32(len(raw)))
	copy(buf[varBytesHeaderSize:], raw)
	return buf, nil
}

func (c *VarBytesCodec) Decode(b []byte) (any, error) {
	if len(b) != c.width {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCodec, c.width, len(b))
	}
	n := binary.BigEndian.Uint32(b)
	if int(n) > c.width-varBytesHeaderSize {
		return nil, fmt.Errorf("%w: embedded length %d exceeds capacity %d", ErrCodec, n, c.width-varBytesHeaderSize)
	}
	out := make([]byte, n)
	copy(out, b[varBytesHeaderSize:varBytesHeaderSize+n])
	return out, nil
}
