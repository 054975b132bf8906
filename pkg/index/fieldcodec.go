package index

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ssargent/freyjadb/pkg/codec"
)

// dynamicFieldCodec stores a field value as a 1-byte type tag followed by
// a fixed-width payload. It exists because a single named field (e.g.
// "mixed_types" in a loosely-typed record store) can legitimately see
// int, int64, float64, and string values across different records —
// an earlier SecondaryIndex.serializeValue discriminated on
// a runtime type switch the same way, just without the fixed-width
// constraint a heap-file-backed tree imposes. Values of different types
// sort by tag first and are never considered equal to one another.
type dynamicFieldCodec struct {
	payloadWidth int
}

const (
	tagInt64 byte = iota
	tagFloat64
	tagString
)

func newDynamicFieldCodec(payloadWidth int) *dynamicFieldCodec {
	return &dynamicFieldCodec{payloadWidth: payloadWidth}
}

func (c *dynamicFieldCodec) Size() int { return 1 + c.payloadWidth }

func (c *dynamicFieldCodec) Encode(v any) ([]byte, error) {
	buf := make([]byte, c.Size())
	switch val := v.(type) {
	case int:
		buf[0] = tagInt64
		binary.BigEndian.PutUint64(buf[1:9], orderedInt64(int64(val)))
	case int64:
		buf[0] = tagInt64
		binary.BigEndian.PutUint64(buf[1:9], orderedInt64(val))
	case float64:
		buf[0] = tagFloat64
		binary.BigEndian.PutUint64(buf[1:9], orderedFloat64(val))
	case string:
		if len(val) > c.payloadWidth {
			return nil, fmt.Errorf("%w: string of %d bytes exceeds field width %d", codec.ErrCodec, len(val), c.payloadWidth)
		}
		buf[0] = tagString
		copy(buf[1:], val)
	default:
		// Mirrors serializeValue's default case: an unknown
		// type is indexed by its string representation.
		s := fmt.Sprintf("%v", val)
		if len(s) > c.payloadWidth {
			return nil, fmt.Errorf("%w: value of %d bytes exceeds field width %d", codec.ErrCodec, len(s), c.payloadWidth)
		}
		buf[0] = tagString
		copy(buf[1:], s)
	}
	return buf, nil
}

func (c *dynamicFieldCodec) Decode(b []byte) (any, error) {
	if len(b) != c.Size() {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", codec.ErrCodec, c.Size(), len(b))
	}
	switch b[0] {
	case tagInt64:
		return unorderedInt64(binary.BigEndian.Uint64(b[1:9])), nil
	case tagFloat64:
		return unorderedFloat64(binary.BigEndian.Uint64(b[1:9])), nil
	case tagString:
		end := 1
		for i := len(b) - 1; i >= 1; i-- {
			if b[i] != 0 {
				end = i + 1
				break
			}
		}
		return string(b[1:end]), nil
	default:
		return nil, fmt.Errorf("%w: unknown field type tag %d", codec.ErrCodec, b[0])
	}
}

// orderedInt64 flips the sign bit so big-endian byte comparison of the
// result matches signed numeric comparison.
func orderedInt64(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

func unorderedInt64(u uint64) int64 {
	return int64(u ^ (1 << 63))
}

// orderedFloat64 maps a float64's bit pattern so big-endian byte
// comparison matches IEEE-754 ordering: for non-negative values, flip
// the sign bit; for negative values, flip every bit (this also makes
// negative values sort before positive ones, and more-negative before
// less-negative).
func orderedFloat64(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func unorderedFloat64(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}
