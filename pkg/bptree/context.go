package bptree

import (
	"fmt"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/freyjadb/pkg/dll"
	"github.com/ssargent/freyjadb/pkg/heapfile"
)

// Context is a short-lived, operation-scoped cache of BTreeElements keyed
// by file position. A single insert or delete may touch six to ten
// elements (target leaf, new sibling, old parent, new parent/root,
// prev/succ neighbors, re-parented children); without coalescing, the
// same element could be read and written multiple times within one
// mutation, and a child being re-parented could be re-read after its
// parent already changed underneath it. Context guarantees each element
// is read at most once and written at most once per operation.
//
// A Context is tagged with a ksuid operation id purely for
// pkg/logtrace debugging; it has no bearing on correctness.
type Context struct {
	tree  *Tree
	opID  string
	cache map[uint64]*BTreeElement
	dirty map[uint64]bool
}

func newContext(t *Tree) *Context {
	return &Context{
		tree:  t,
		opID:  ksuid.New().String(),
		cache: make(map[uint64]*BTreeElement),
		dirty: make(map[uint64]bool),
	}
}

// ReadElem returns the cached element at pos if this Context has already
// touched it, otherwise loads it from the heap file and caches it.
func (ctx *Context) ReadElem(pos uint64) (*BTreeElement, error) {
	if be, ok := ctx.cache[pos]; ok {
		return be, nil
	}

	raw, err := ctx.tree.hf.Read(heapfile.Handle(pos))
	if err != nil {
		return nil, fmt.Errorf("%w: reading element %d: %v", ErrStorage, pos, err)
	}
	be, err := decodeElement(raw, ctx.tree.keySize, ctx.tree.dataSize)
	if err != nil {
		return nil, err
	}
	if be.Elem.Pos != pos {
		return nil, fmt.Errorf("%w: element at %d reports pos %d", ErrIntegrityViolation, pos, be.Elem.Pos)
	}

	ctx.cache[pos] = &be
	ctx.tree.trace.Logf("Context", ctx.opID, "read pos=%d entries=%d parent=%d", pos, len(be.NodeList.Entries), be.NodeList.Parent)
	return &be, nil
}

// ReadDLLElem is ReadElem narrowed to the linked-list header view; the
// Python reference keeps these as separate calls against a shared cache,
// but since BTreeElement already bundles both here there is nothing
// further to narrow — it is an alias kept for call-site clarity at leaf
// chain splice points.
func (ctx *Context) ReadDLLElem(pos uint64) (*dll.Elem, error) {
	be, err := ctx.ReadElem(pos)
	if err != nil {
		return nil, err
	}
	return &be.Elem, nil
}

// WriteElem caches be and marks it dirty for flush on Done.
func (ctx *Context) WriteElem(be *BTreeElement) {
	ctx.cache[be.Elem.Pos] = be
	ctx.dirty[be.Elem.Pos] = true
}

// WriteDLLElem writes back just the linked-list header of an
// already-cached element. See ReadDLLElem.
func (ctx *Context) WriteDLLElem(pos uint64, elem dll.Elem) error {
	be, err := ctx.ReadElem(pos)
	if err != nil {
		return err
	}
	be.Elem = elem
	ctx.WriteElem(be)
	return nil
}

// CreateEmptyList allocates a fresh heap record sized for this tree's
// maximum element width and returns its BTreeElement with an empty
// NodeList, cached and marked dirty.
func (ctx *Context) CreateEmptyList() (*BTreeElement, error) {
	handle, err := ctx.tree.hf.Alloc(ctx.tree.maxElemSize)
	if err != nil {
		return nil, fmt.Errorf("%w: allocating element: %v", ErrStorage, err)
	}

	be := &BTreeElement{Elem: dll.Elem{Pos: uint64(handle)}}
	ctx.WriteElem(be)
	ctx.tree.trace.Logf("Context", ctx.opID, "created empty list pos=%d", be.Elem.Pos)
	return be, nil
}

// Free releases pos's heap record and drops it from the cache and dirty
// set — a freed element must never be flushed by Done.
func (ctx *Context) Free(pos uint64) error {
	delete(ctx.cache, pos)
	delete(ctx.dirty, pos)
	if err := ctx.tree.hf.Free(heapfile.Handle(pos)); err != nil {
		return fmt.Errorf("%w: freeing element %d: %v", ErrStorage, pos, err)
	}
	ctx.tree.trace.Logf("Context", ctx.opID, "freed pos=%d", pos)
	return nil
}

// Done flushes every dirty element to the heap file and clears the
// cache. Close is the same operation, kept as a separate name to read
// naturally at call sites that treat the Context as a resource.
func (ctx *Context) Done() error {
	for pos, be := range ctx.cache {
		if !ctx.dirty[pos] {
			continue
		}
		raw, err := encodeElement(*be, ctx.tree.keySize, ctx.tree.dataSize)
		if err != nil {
			return err
		}
		if err := ctx.tree.hf.Write(heapfile.Handle(pos), raw); err != nil {
			return fmt.Errorf("%w: writing element %d: %v", ErrStorage, pos, err)
		}
	}
	ctx.cache = make(map[uint64]*BTreeElement)
	ctx.dirty = make(map[uint64]bool)
	return nil
}

// Close is an alias for Done.
func (ctx *Context) Close() error { return ctx.Done() }
