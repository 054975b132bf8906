// Package dll implements the doubly-linked-list element header shared
// by every leaf record in a bptree.Tree's leaf chain.
//
// This is the "doubly-linked-list element primitive" that the B+Tree
// specification treats as an external collaborator: a fixed-width
// header of three file positions (pos, prev, succ) plus the single
// operation needed to splice a new element into the chain ahead of an
// existing one.
package dll

import "encoding/binary"

// Size is the on-disk width of a serialized Elem: three uint64 positions.
const Size = 24

// Elem is the linked-list header embedded in every heap record that
// participates in the ordered leaf chain. Pos is the element's own
// heap position; Prev/Succ are zero when there is no neighbor on that
// side.
type Elem struct {
	Pos  uint64
	Prev uint64
	Succ uint64
}

// InsertBefore splices e into the chain immediately ahead of other.
// e must already have its own Pos assigned (the caller allocates the
// heap record before wiring it into the chain). other.Prev's Succ
// pointer is the caller's responsibility to update afterwards — see
// bptree.Tree.splitLeaf, which fixes up the far neighbor once the split
// has propagated to the parent.
func (e *Elem) InsertBefore(other *Elem) {
	e.Prev = other.Prev
	e.Succ = other.Pos
	other.Prev = e.Pos
}

// Encode serializes the header as three big-endian uint64 values.
func (e Elem) Encode() []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint64(buf[0:8], e.Pos)
	binary.BigEndian.PutUint64(buf[8:16], e.Prev)
	binary.BigEndian.PutUint64(buf[16:24], e.Succ)
	return buf
}

// Decode deserializes a header previously produced by Encode.
func Decode(buf []byte) (Elem, error) {
	if len(buf) < Size {
		return Elem{}, ErrShortBuffer
	}
	return Elem{
		Pos:  binary.BigEndian.Uint64(buf[0:8]),
		Prev: binary.BigEndian.Uint64(buf[8:16]),
		Succ: binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}
