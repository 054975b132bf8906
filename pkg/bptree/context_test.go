package bptree

import (
	"path/filepath"
	"testing"

	"github.com/ssargent/freyjadb/pkg/codec"
	"github.com/ssargent/freyjadb/pkg/heapfile"
)

func newTestHeapFile(t *testing.T) *heapfile.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.heap")
	hf, err := heapfile.Create(path, descriptorSize)
	if err != nil {
		t.Fatalf("heapfile.Create: %v", err)
	}
	t.Cleanup(func() { _ = hf.Close() })
	return hf
}

func newTestTree(t *testing.T, keysPerNode int) *Tree {
	t.Helper()
	hf := newTestHeapFile(t)
	tr, err := New(hf, codec.NewStringCodec(8), codec.NewUint64Codec(), keysPerNode)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestContextReadElemCachesAcrossCalls(t *testing.T) {
	tr := newTestTree(t, MinKeysPerNode)
	ctx := newContext(tr)

	a, err := ctx.ReadElem(tr.desc.RootPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ctx.ReadElem(tr.desc.RootPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatal("expected ReadElem to return the same cached pointer on a second call")
	}
}

func TestContextCreateEmptyListAllocatesAndCaches(t *testing.T) {
	tr := newTestTree(t, MinKeysPerNode)
	ctx := newContext(tr)

	be, err := ctx.CreateEmptyList()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if be.Elem.Pos == 0 {
		t.Fatal("expected a non-zero allocated position")
	}
	if be.NodeList.Len() != 0 {
		t.Fatalf("expected an empty NodeList, got %+v", be.NodeList)
	}

	if err := ctx.Done(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Re-read in a fresh Context to confirm Done actually persisted it.
	ctx2 := newContext(tr)
	got, err := ctx2.ReadElem(be.Elem.Pos)
	if err != nil {
		t.Fatalf("unexpected error reading back: %v", err)
	}
	if got.Elem.Pos != be.Elem.Pos {
		t.Fatalf("expected pos %d, got %d", be.Elem.Pos, got.Elem.Pos)
	}
}

func TestContextFreeDropsFromCacheAndHeap(t *testing.T) {
	tr := newTestTree(t, MinKeysPerNode)
	ctx := newContext(tr)

	be, err := ctx.CreateEmptyList()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := be.Elem.Pos

	if err := ctx.Free(pos); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ctx.cache[pos]; ok {
		t.Fatal("expected Free to drop the element from the cache")
	}

	if err := ctx.Done(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx2 := newContext(tr)
	if _, err := ctx2.ReadElem(pos); err == nil {
		t.Fatal("expected reading a freed element to fail")
	}
}

func TestContextWriteElemMarksDirty(t *testing.T) {
	tr := newTestTree(t, MinKeysPerNode)
	ctx := newContext(tr)

	root, err := ctx.ReadElem(tr.desc.RootPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = root.NodeList.Insert(leafNode("aaaaaaaa"))
	ctx.WriteElem(root)

	if !ctx.dirty[root.Elem.Pos] {
		t.Fatal("expected WriteElem to mark the element dirty")
	}

	if err := ctx.Done(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx2 := newContext(tr)
	got, err := ctx2.ReadElem(tr.desc.RootPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NodeList.Len() != 1 {
		t.Fatalf("expected the insert to have persisted, got %+v", got.NodeList)
	}
}
