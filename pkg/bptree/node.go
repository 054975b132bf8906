package bptree

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// entryHeaderSize is the fixed width of one NodeList entry on disk,
// excluding the variable KEY_SIZE/DATA_SIZE contributed by the tree's
// codecs: flags(1) + left(8) + right(8).
const entryHeaderSize = 1 + 8 + 8

// nodeListHeaderSize is count:u16 + parent:link(8).
const nodeListHeaderSize = 2 + 8

const leafFlag = 1 << 0

// Node is one entry inside a NodeList: either a leaf entry carrying a
// fixed-width key and payload, or an interior routing entry carrying a
// key and the position of the child subtree holding keys <= that key.
// Key and Data are always stored pre-encoded to their codec's fixed
// width; the tree only decodes them back to Go values at its public API
// boundary (Search results, iteration).
type Node struct {
	Key  []byte
	Leaf bool
	Data []byte // unused (nil) when Leaf is false

	// Left is the child element holding keys <= Key. Zero for leaf
	// entries.
	Left uint64

	// Right is set only on the trailing entry of an interior NodeList:
	// the child element holding keys > Key.
	Right uint64
}

func encodeEntry(n Node, keySize, dataSize int) ([]byte, error) {
	if len(n.Key) != keySize {
		return nil, fmt.Errorf("%w: entry key is %d bytes, codec width is %d", ErrIntegrityViolation, len(n.Key), keySize)
	}
	if n.Leaf && len(n.Data) != dataSize {
		return nil, fmt.Errorf("%w: leaf entry data is %d bytes, codec width is %d", ErrIntegrityViolation, len(n.Data), dataSize)
	}

	buf := make([]byte, entryHeaderSize+keySize+dataSize)
	if n.Leaf {
		buf[0] = leafFlag
	}
	copy(buf[1:1+keySize], n.Key)
	if n.Leaf {
		copy(buf[1+keySize:1+keySize+dataSize], n.Data)
	}
	binary.BigEndian.PutUint64(buf[1+keySize+dataSize:], n.Left)
	binary.BigEndian.PutUint64(buf[1+keySize+dataSize+8:], n.Right)
	return buf, nil
}

func decodeEntry(buf []byte, keySize, dataSize int) (Node, error) {
	want := entryHeaderSize + keySize + dataSize
	if len(buf) != want {
		return Node{}, fmt.Errorf("%w: entry is %d bytes, expected %d", ErrIntegrityViolation, len(buf), want)
	}

	n := Node{Leaf: buf[0]&leafFlag != 0}
	n.Key = append([]byte(nil), buf[1:1+keySize]...)
	if n.Leaf {
		n.Data = append([]byte(nil), buf[1+keySize:1+keySize+dataSize]...)
	}
	n.Left = binary.BigEndian.Uint64(buf[1+keySize+dataSize:])
	n.Right = binary.BigEndian.Uint64(buf[1+keySize+dataSize+8:])
	return n, nil
}

func keyLess(a, b []byte) bool    { return bytes.Compare(a, b) < 0 }
func keyLessEq(a, b []byte) bool  { return bytes.Compare(a, b) <= 0 }
func keyEqual(a, b []byte) bool   { return bytes.Equal(a, b) }
func keyGreater(a, b []byte) bool { return bytes.Compare(a, b) > 0 }
