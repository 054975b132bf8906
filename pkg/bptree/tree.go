// Package bptree implements a persistent B+Tree index over a heap file.
// Keys live in leaf elements chained into a doubly-linked list for
// ordered traversal; interior elements hold only routing keys. The tree
// is layered over a heap-file allocator (pkg/heapfile) and a
// doubly-linked-list element primitive (pkg/dll), both treated as
// external collaborators whose interfaces this package consumes.
package bptree

import (
	"fmt"

	"github.com/ssargent/freyjadb/pkg/codec"
	"github.com/ssargent/freyjadb/pkg/heapfile"
	"github.com/ssargent/freyjadb/pkg/logtrace"
)

// DefaultKeysPerNode is used when a caller passes a keysPerNode below
// MinKeysPerNode.
const DefaultKeysPerNode = 16

// MinKeysPerNode is the smallest keysPerNode this package accepts —
// small enough for tests to exercise splits in a handful of inserts.
const MinKeysPerNode = 4

// HeapFile is the heap-file allocator this tree is layered over.
// *heapfile.File satisfies it directly.
type HeapFile interface {
	Alloc(size int) (heapfile.Handle, error)
	Read(h heapfile.Handle) ([]byte, error)
	Write(h heapfile.Handle, data []byte) error
	Free(h heapfile.Handle) error
	Flush() error
	DescriptorHandle() heapfile.Handle
}

// Tree is a B+Tree index backed by a HeapFile. It is not safe for
// concurrent mutation from multiple goroutines; a caller needing that
// serializes access itself.
type Tree struct {
	hf          HeapFile
	keyCodec    codec.KeyCodec
	dataCodec   codec.DataCodec
	keysPerNode int
	keySize     int
	dataSize    int
	maxElemSize int
	desc        RootDescriptor
	trace       *logtrace.Trace
}

func newTree(hf HeapFile, keyCodec codec.KeyCodec, dataCodec codec.DataCodec, keysPerNode int, desc RootDescriptor) *Tree {
	if keysPerNode < MinKeysPerNode {
		keysPerNode = DefaultKeysPerNode
	}
	keySize := keyCodec.Size()
	dataSize := dataCodec.Size()
	return &Tree{
		hf:          hf,
		keyCodec:    keyCodec,
		dataCodec:   dataCodec,
		keysPerNode: keysPerNode,
		keySize:     keySize,
		dataSize:    dataSize,
		maxElemSize: maxElementSize(keysPerNode, keySize, dataSize),
		desc:        desc,
		trace:       logtrace.New(),
	}
}

// New creates a brand new tree: allocates an empty root element and
// persists the descriptor (root = first = last = the new root's
// position).
func New(hf HeapFile, keyCodec codec.KeyCodec, dataCodec codec.DataCodec, keysPerNode int) (*Tree, error) {
	t := newTree(hf, keyCodec, dataCodec, keysPerNode, RootDescriptor{})

	ctx := newContext(t)
	root, err := ctx.CreateEmptyList()
	if err != nil {
		return nil, err
	}
	t.desc = RootDescriptor{RootPos: root.Elem.Pos, FirstPos: root.Elem.Pos, LastPos: root.Elem.Pos}

	if err := ctx.Done(); err != nil {
		return nil, err
	}
	if err := t.persistDescriptor(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open wraps an existing tree given its already-read descriptor. Callers
// typically read it via hf.Read(hf.DescriptorHandle()) and
// DecodeRootDescriptor.
func Open(hf HeapFile, desc RootDescriptor, keyCodec codec.KeyCodec, dataCodec codec.DataCodec, keysPerNode int) *Tree {
	return newTree(hf, keyCodec, dataCodec, keysPerNode, desc)
}

// Descriptor returns the tree's current root descriptor.
func (t *Tree) Descriptor() RootDescriptor { return t.desc }

// Flush is a thin pass-through to the heap file's Flush; it is never
// called implicitly by a mutation.
func (t *Tree) Flush() error { return t.hf.Flush() }

func (t *Tree) persistDescriptor() error {
	if err := t.hf.Write(t.hf.DescriptorHandle(), t.desc.Encode()); err != nil {
		return fmt.Errorf("%w: persisting descriptor: %v", ErrStorage, err)
	}
	return nil
}

// Search descends from the root looking for key. The returned Context is
// populated with every element visited and may be reused for a
// subsequent mutation in the same unit of work; the caller owns calling
// Done on it.
func (t *Tree) Search(key any) (*Node, uint64, bool, *Context, error) {
	keyBytes, err := t.keyCodec.Encode(key)
	if err != nil {
		return nil, 0, false, nil, err
	}
	if t.desc.RootPos == 0 {
		return nil, 0, false, nil, ErrNotInitialized
	}

	ctx := newContext(t)
	n, pos, found, err := t.searchNode(keyBytes, t.desc.RootPos, ctx)
	if err != nil {
		return nil, 0, false, ctx, err
	}
	return n, pos, found, ctx, nil
}

// searchNode descends from npos looking for key, reusing ctx rather
// than building its own.
func (t *Tree) searchNode(key []byte, npos uint64, ctx *Context) (*Node, uint64, bool, error) {
	elem, err := ctx.ReadElem(npos)
	if err != nil {
		return nil, 0, false, err
	}

	if elem.NodeList.Len() == 0 {
		if npos != t.desc.RootPos {
			return nil, 0, false, fmt.Errorf("%w: empty non-root element %d", ErrIntegrityViolation, npos)
		}
		return nil, npos, false, nil
	}

	if elem.NodeList.Entries[0].Leaf {
		if i := elem.NodeList.FindKey(key); i >= 0 {
			n := elem.NodeList.Entries[i]
			return &n, npos, true, nil
		}
		return nil, npos, false, nil
	}

	for i := range elem.NodeList.Entries {
		n := elem.NodeList.Entries[i]
		// Left == 0 marks an entry that only carries a trailing Right
		// (deleteFromInner leaves these behind when a Left sibling is
		// deleted out from under it); it never matches, so the key
		// always falls through to the last.Right branch below.
		if n.Left != 0 && keyLessEq(key, n.Key) {
			return t.searchNode(key, n.Left, ctx)
		}
	}
	last := elem.NodeList.Entries[elem.NodeList.Len()-1]
	if last.Right == 0 {
		return nil, npos, false, nil
	}
	return t.searchNode(key, last.Right, ctx)
}

// InsertToLeaf inserts n into the NodeList at leafPos, splitting (and
// propagating the split upward) if the list overflows KEYS_PER_NODE.
// leafPos must have been returned by Search or otherwise identified as
// the correct insertion leaf.
func (t *Tree) InsertToLeaf(n *Node, leafPos uint64, ctx *Context) (*Node, uint64, error) {
	leafElem, err := ctx.ReadElem(leafPos)
	if err != nil {
		return nil, 0, err
	}
	if leafElem.NodeList.Len() > 0 && !leafElem.NodeList.Entries[0].Leaf {
		return nil, 0, fmt.Errorf("%w: insert target element %d is not a leaf list", ErrIntegrityViolation, leafPos)
	}

	if err := leafElem.NodeList.Insert(*n); err != nil {
		return nil, 0, err
	}

	// A tree whose every key was deleted keeps only an empty root and no
	// leaf chain; the root becomes the chain's only leaf again.
	if t.desc.FirstPos == 0 {
		t.desc.FirstPos, t.desc.LastPos = leafPos, leafPos
	}

	if leafElem.NodeList.Len() <= t.keysPerNode {
		ctx.WriteElem(leafElem)
		return n, leafPos, nil
	}

	return t.splitLeaf(leafElem, n.Key, ctx)
}

func (t *Tree) splitLeaf(leafElem *BTreeElement, insertedKey []byte, ctx *Context) (*Node, uint64, error) {
	splitAt := t.keysPerNode / 2
	leftNL, rightNL := leafElem.NodeList.Sliced(splitAt)
	leftNL.Parent = leafElem.NodeList.Parent
	rightNL.Parent = leafElem.NodeList.Parent

	leftElem, err := ctx.CreateEmptyList()
	if err != nil {
		return nil, 0, err
	}
	leftElem.NodeList = leftNL

	// right is an alias for leafElem: its position is reused (step a/b).
	rightElem := leafElem
	rightElem.NodeList = rightNL

	// c. splice left into the leaf chain immediately before right.
	leftElem.Elem.InsertBefore(&rightElem.Elem)
	ctx.WriteElem(leftElem)
	ctx.WriteElem(rightElem)

	// d. propagate the new separator upward.
	if err := t.insertToInner(leftElem, rightElem, ctx); err != nil {
		return nil, 0, err
	}

	// e. fix up the far neighbor: whoever used to precede right must
	// now point its Succ at left instead.
	if leftElem.Elem.Prev != 0 {
		farNeighbor, err := ctx.ReadElem(leftElem.Elem.Prev)
		if err != nil {
			return nil, 0, err
		}
		farNeighbor.Elem.Succ = leftElem.Elem.Pos
		ctx.WriteElem(farNeighbor)
	}

	// f. descriptor bookkeeping.
	if leftElem.Elem.Prev == 0 {
		t.desc.FirstPos = leftElem.Elem.Pos
	}
	if rightElem.Elem.Succ == 0 {
		t.desc.LastPos = rightElem.Elem.Pos
	}

	// g. locate the inserted key in whichever half holds it.
	if i := leftElem.NodeList.FindKey(insertedKey); i >= 0 {
		got := leftElem.NodeList.Entries[i]
		return &got, leftElem.Elem.Pos, nil
	}
	if i := rightElem.NodeList.FindKey(insertedKey); i >= 0 {
		got := rightElem.NodeList.Entries[i]
		return &got, rightElem.Elem.Pos, nil
	}
	return nil, 0, fmt.Errorf("%w: inserted key missing from both halves after split", ErrIntegrityViolation)
}

// insertToInner propagates a split upward: left and right are two
// sibling elements (just split, or the product of a further parent
// split) sharing the same NodeList.Parent.
func (t *Tree) insertToInner(left, right *BTreeElement, ctx *Context) error {
	parentPos := left.NodeList.Parent

	if parentPos == 0 {
		return t.insertToInnerNewRoot(left, right, ctx)
	}

	parent, err := ctx.ReadElem(parentPos)
	if err != nil {
		return err
	}

	n := Node{Key: left.NodeList.LastKey(), Leaf: false, Left: left.Elem.Pos}
	if ln := parent.NodeList.Len(); ln > 0 {
		last := &parent.NodeList.Entries[ln-1]
		if keyGreater(n.Key, last.Key) {
			n.Right = last.Right
			last.Right = 0
		}
	}
	if err := parent.NodeList.Insert(n); err != nil {
		return err
	}
	ctx.WriteElem(parent)

	if parent.NodeList.Len() <= t.keysPerNode {
		return nil
	}

	return t.splitInner(parent, ctx)
}

func (t *Tree) insertToInnerNewRoot(left, right *BTreeElement, ctx *Context) error {
	newRoot, err := ctx.CreateEmptyList()
	if err != nil {
		return err
	}

	// The only interior entry that ever carries both Left and Right: it
	// encodes the two children of a brand-new root.
	n := Node{Key: left.NodeList.LastKey(), Leaf: false, Left: left.Elem.Pos, Right: right.Elem.Pos}
	if err := newRoot.NodeList.Insert(n); err != nil {
		return err
	}
	ctx.WriteElem(newRoot)

	left.NodeList.Parent = newRoot.Elem.Pos
	right.NodeList.Parent = newRoot.Elem.Pos
	ctx.WriteElem(left)
	ctx.WriteElem(right)

	if err := t.updateChildren(&left.NodeList, left.Elem.Pos, ctx); err != nil {
		return err
	}
	if err := t.updateChildren(&right.NodeList, right.Elem.Pos, ctx); err != nil {
		return err
	}

	t.desc.RootPos = newRoot.Elem.Pos
	return nil
}

func (t *Tree) splitInner(parent *BTreeElement, ctx *Context) error {
	grandParentPos := parent.NodeList.Parent

	splitAt := t.keysPerNode / 2
	pLeftNL, pRightNL := parent.NodeList.Sliced(splitAt)
	pLeftNL.Parent = grandParentPos
	pRightNL.Parent = grandParentPos

	pLeftElem, err := ctx.CreateEmptyList()
	if err != nil {
		return err
	}
	pLeftElem.NodeList = pLeftNL

	// The original parent element becomes the right half, reusing its
	// position — mirrors the leaf-split convention.
	parent.NodeList = pRightNL

	ctx.WriteElem(pLeftElem)
	ctx.WriteElem(parent)

	// Re-parent both halves' children before recursing: the recursion
	// may rewrite the grandparent, and a child re-read afterward must
	// already see its correct new parent.
	if err := t.updateChildren(&pLeftElem.NodeList, pLeftElem.Elem.Pos, ctx); err != nil {
		return err
	}
	if err := t.updateChildren(&parent.NodeList, parent.Elem.Pos, ctx); err != nil {
		return err
	}

	return t.insertToInner(pLeftElem, parent, ctx)
}

// updateChildren re-parents every child reachable from nl (via Left, and
// via the trailing Right) to point at parentPos. Must run on both halves
// of a split before the split propagates further.
//
// A previous revision of this logic returned on the first entry with
// Left == 0 instead of continuing past it, which silently skipped
// re-parenting for every entry after the first routing-only one.
// This implementation continues.
func (t *Tree) updateChildren(nl *NodeList, parentPos uint64, ctx *Context) error {
	for i := range nl.Entries {
		left := nl.Entries[i].Left
		if left == 0 {
			continue
		}
		child, err := ctx.ReadElem(left)
		if err != nil {
			return err
		}
		child.NodeList.Parent = parentPos
		ctx.WriteElem(child)
	}

	if ln := nl.Len(); ln > 0 {
		if right := nl.Entries[ln-1].Right; right != 0 {
			child, err := ctx.ReadElem(right)
			if err != nil {
				return err
			}
			child.NodeList.Parent = parentPos
			ctx.WriteElem(child)
		}
	}
	return nil
}

// DeleteFromLeaf removes key from the NodeList at leafPos. If the leaf
// becomes empty it is unlinked from the leaf chain, freed, and the dead
// separator is removed from its parent (recursing upward through empty
// interiors). A leaf that is the root is kept, empty, as the first and
// last element.
func (t *Tree) DeleteFromLeaf(key any, leafPos uint64, ctx *Context) error {
	keyBytes, err := t.keyCodec.Encode(key)
	if err != nil {
		return err
	}
	return t.deleteFromLeafBytes(keyBytes, leafPos, ctx)
}

func (t *Tree) deleteFromLeafBytes(key []byte, leafPos uint64, ctx *Context) error {
	leafElem, err := ctx.ReadElem(leafPos)
	if err != nil {
		return err
	}
	if err := leafElem.NodeList.RemoveKey(key); err != nil {
		return err
	}

	if leafElem.NodeList.Len() > 0 {
		ctx.WriteElem(leafElem)
		return nil
	}

	// The root is allowed to stay empty: an unsplit tree keeps its root
	// leaf, the same shape New creates.
	if leafPos == t.desc.RootPos {
		ctx.WriteElem(leafElem)
		return nil
	}

	prevPos, succPos := leafElem.Elem.Prev, leafElem.Elem.Succ

	if prevPos != 0 {
		prevElem, err := ctx.ReadElem(prevPos)
		if err != nil {
			return err
		}
		prevElem.Elem.Succ = succPos
		ctx.WriteElem(prevElem)
	} else {
		t.desc.FirstPos = succPos
	}

	if succPos != 0 {
		succElem, err := ctx.ReadElem(succPos)
		if err != nil {
			return err
		}
		succElem.Elem.Prev = prevPos
		ctx.WriteElem(succElem)
	} else {
		t.desc.LastPos = prevPos
	}

	parentPos := leafElem.NodeList.Parent
	if err := ctx.Free(leafPos); err != nil {
		return err
	}
	if parentPos == 0 {
		return nil
	}
	return t.deleteFromInner(leafPos, parentPos, ctx)
}

// deleteFromInner removes, from the element at parentPos, whichever
// entry routes to childPos — by position (Left or trailing Right), not
// by key, since a leaf's separator can go stale relative to its actual
// remaining keys as deletes accumulate.
// If parentPos becomes empty it is freed in turn and the removal
// recurses upward, except the root is allowed to stay empty.
func (t *Tree) deleteFromInner(childPos, parentPos uint64, ctx *Context) error {
	parent, err := ctx.ReadElem(parentPos)
	if err != nil {
		return err
	}

	idx, trailing := findChildEntry(parent.NodeList.Entries, childPos)
	if idx < 0 {
		return fmt.Errorf("%w: no entry in element %d routes to child %d", ErrIntegrityViolation, parentPos, childPos)
	}

	entries := parent.NodeList.Entries
	if trailing {
		entries[idx].Right = 0
	} else {
		wasLast := idx == len(entries)-1
		promotedRight := entries[idx].Right
		removedKey := entries[idx].Key
		entries = append(entries[:idx], entries[idx+1:]...)
		if wasLast && promotedRight != 0 {
			if len(entries) > 0 {
				entries[len(entries)-1].Right = promotedRight
			} else {
				// The removed entry was the only one and carried a
				// trailing Right: that sibling survives and still needs
				// a route. Keep it reachable via a Left-less entry, which
				// searchNode always falls through to last.Right for.
				entries = append(entries, Node{Key: removedKey, Right: promotedRight})
			}
		}
	}

	// An entry with neither a Left nor a Right child routes nowhere;
	// drop it so the list's true emptiness is reflected in Len().
	live := entries[:0]
	for _, e := range entries {
		if e.Left == 0 && e.Right == 0 {
			continue
		}
		live = append(live, e)
	}
	parent.NodeList.Entries = live

	if parent.NodeList.Len() > 0 {
		ctx.WriteElem(parent)
		return nil
	}

	if parentPos == t.desc.RootPos {
		ctx.WriteElem(parent)
		return nil
	}

	grandParentPos := parent.NodeList.Parent
	if err := ctx.Free(parentPos); err != nil {
		return err
	}
	return t.deleteFromInner(parentPos, grandParentPos, ctx)
}

func findChildEntry(entries []Node, childPos uint64) (idx int, trailing bool) {
	for i := range entries {
		if entries[i].Left == childPos {
			return i, false
		}
	}
	if n := len(entries); n > 0 && entries[n-1].Right == childPos {
		return n - 1, true
	}
	return -1, false
}

// Insert encodes key/value and inserts them, building and flushing its
// own Context.
func (t *Tree) Insert(key, value any) error {
	if t.desc.RootPos == 0 {
		return ErrNotInitialized
	}
	keyBytes, err := t.keyCodec.Encode(key)
	if err != nil {
		return err
	}
	dataBytes, err := t.dataCodec.Encode(value)
	if err != nil {
		return err
	}

	ctx := newContext(t)
	_, leafPos, found, err := t.searchNode(keyBytes, t.desc.RootPos, ctx)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: %x", ErrDuplicateKey, keyBytes)
	}

	n := Node{Key: keyBytes, Leaf: true, Data: dataBytes}
	if _, _, err := t.InsertToLeaf(&n, leafPos, ctx); err != nil {
		return err
	}

	if err := ctx.Done(); err != nil {
		return err
	}
	return t.persistDescriptor()
}

// Delete encodes key and removes it, building and flushing its own
// Context.
func (t *Tree) Delete(key any) error {
	if t.desc.RootPos == 0 {
		return ErrNotInitialized
	}
	keyBytes, err := t.keyCodec.Encode(key)
	if err != nil {
		return err
	}

	ctx := newContext(t)
	_, leafPos, found, err := t.searchNode(keyBytes, t.desc.RootPos, ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %x", ErrKeyNotFound, keyBytes)
	}

	if err := t.deleteFromLeafBytes(keyBytes, leafPos, ctx); err != nil {
		return err
	}

	if err := ctx.Done(); err != nil {
		return err
	}
	return t.persistDescriptor()
}

// DecodeKey decodes a stored fixed-width key back to its Go value.
func (t *Tree) DecodeKey(b []byte) (any, error) { return t.keyCodec.Decode(b) }

// DecodeData decodes a stored fixed-width payload back to its Go value.
func (t *Tree) DecodeData(b []byte) (any, error) { return t.dataCodec.Decode(b) }
