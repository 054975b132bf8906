package bptree

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// NodeList is an ordered, homogeneous sequence of Nodes sharing one
// parent pointer. Entries are always kept sorted ascending by Key; the
// list is either all-leaf or all-interior (I3), never mixed.
type NodeList struct {
	Parent  uint64
	Entries []Node
}

// Len returns the number of entries.
func (nl *NodeList) Len() int { return len(nl.Entries) }

// Insert places n in ascending-key order. It rejects a key already
// present in the list.
func (nl *NodeList) Insert(n Node) error {
	i := sort.Search(len(nl.Entries), func(i int) bool {
		return !keyLess(nl.Entries[i].Key, n.Key)
	})
	if i < len(nl.Entries) && keyEqual(nl.Entries[i].Key, n.Key) {
		return fmt.Errorf("%w: key already present", ErrDuplicateKey)
	}

	nl.Entries = append(nl.Entries, Node{})
	copy(nl.Entries[i+1:], nl.Entries[i:])
	nl.Entries[i] = n
	return nil
}

// FindKey returns the index of the entry with exact key k, or -1.
func (nl *NodeList) FindKey(k []byte) int {
	i := sort.Search(len(nl.Entries), func(i int) bool {
		return !keyLess(nl.Entries[i].Key, k)
	})
	if i < len(nl.Entries) && keyEqual(nl.Entries[i].Key, k) {
		return i
	}
	return -1
}

// RemoveKey removes the entry with exact key k. It returns ErrKeyNotFound
// if absent.
func (nl *NodeList) RemoveKey(k []byte) error {
	i := nl.FindKey(k)
	if i < 0 {
		return fmt.Errorf("%w: %x", ErrKeyNotFound, k)
	}
	nl.Entries = append(nl.Entries[:i], nl.Entries[i+1:]...)
	return nil
}

// Sliced splits the list into two new NodeLists covering entries [0,at)
// and [at,len). Parent is left zero on both; the caller assigns it (the
// two halves usually get different parents after a split).
func (nl *NodeList) Sliced(at int) (left, right NodeList) {
	left.Entries = append([]Node(nil), nl.Entries[:at]...)
	right.Entries = append([]Node(nil), nl.Entries[at:]...)
	return left, right
}

// LastKey returns the key of the final entry. Callers must ensure the
// list is non-empty.
func (nl *NodeList) LastKey() []byte {
	return nl.Entries[len(nl.Entries)-1].Key
}

func (nl *NodeList) encode(keySize, dataSize int) ([]byte, error) {
	buf := make([]byte, nodeListHeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(nl.Entries)))
	binary.BigEndian.PutUint64(buf[2:10], nl.Parent)

	for _, n := range nl.Entries {
		entry, err := encodeEntry(n, keySize, dataSize)
		if err != nil {
			return nil, err
		}
		buf = append(buf, entry...)
	}
	return buf, nil
}

func decodeNodeList(buf []byte, keySize, dataSize int) (NodeList, error) {
	if len(buf) < nodeListHeaderSize {
		return NodeList{}, fmt.Errorf("%w: nodelist header truncated", ErrIntegrityViolation)
	}

	count := binary.BigEndian.Uint16(buf[0:2])
	nl := NodeList{Parent: binary.BigEndian.Uint64(buf[2:10])}

	entrySize := entryHeaderSize + keySize + dataSize
	offset := nodeListHeaderSize
	for i := 0; i < int(count); i++ {
		if offset+entrySize > len(buf) {
			return NodeList{}, fmt.Errorf("%w: nodelist entry %d truncated", ErrIntegrityViolation, i)
		}
		n, err := decodeEntry(buf[offset:offset+entrySize], keySize, dataSize)
		if err != nil {
			return NodeList{}, err
		}
		nl.Entries = append(nl.Entries, n)
		offset += entrySize
	}
	return nl, nil
}
