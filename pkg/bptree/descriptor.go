package bptree

import (
	"encoding/binary"
	"fmt"

	"github.com/ssargent/freyjadb/pkg/heapfile"
)

// descriptorSize is 3 link-size (8-byte) file offsets: root, first, last.
const descriptorSize = 3 * heapfile.LinkSize

// DescriptorSize is the fixed byte width a caller must pass to
// heapfile.Create so the heap file's first slot has room for a
// RootDescriptor.
const DescriptorSize = descriptorSize

// RootDescriptor is the tree-root descriptor: three file offsets
// persisted into a fixed heap record (conventionally the heap file's
// first record). An all-zero descriptor denotes an uninitialized tree.
type RootDescriptor struct {
	RootPos  uint64
	FirstPos uint64
	LastPos  uint64
}

// Encode serializes the descriptor to its fixed 24-byte on-disk form.
func (d RootDescriptor) Encode() []byte {
	buf := make([]byte, descriptorSize)
	binary.BigEndian.PutUint64(buf[0:8], d.RootPos)
	binary.BigEndian.PutUint64(buf[8:16], d.FirstPos)
	binary.BigEndian.PutUint64(buf[16:24], d.LastPos)
	return buf
}

// DecodeRootDescriptor parses a descriptor from its on-disk form.
func DecodeRootDescriptor(buf []byte) (RootDescriptor, error) {
	if len(buf) != descriptorSize {
		return RootDescriptor{}, fmt.Errorf("%w: descriptor is %d bytes, want %d", ErrIntegrityViolation, len(buf), descriptorSize)
	}
	return RootDescriptor{
		RootPos:  binary.BigEndian.Uint64(buf[0:8]),
		FirstPos: binary.BigEndian.Uint64(buf[8:16]),
		LastPos:  binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// IsZero reports whether the descriptor denotes an uninitialized tree.
func (d RootDescriptor) IsZero() bool {
	return d.RootPos == 0 && d.FirstPos == 0 && d.LastPos == 0
}
