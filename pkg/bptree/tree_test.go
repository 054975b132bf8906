package bptree

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ssargent/freyjadb/pkg/codec"
	"github.com/ssargent/freyjadb/pkg/heapfile"
)

func testKey(i int) string { return fmt.Sprintf("k%06d", i) }

func collectForward(t *testing.T, tr *Tree) []string {
	t.Helper()
	it, err := tr.ForwardIter()
	if err != nil {
		t.Fatalf("ForwardIter: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		k, err := tr.DecodeKey(it.Node().Key)
		if err != nil {
			t.Fatalf("DecodeKey: %v", err)
		}
		got = append(got, k.(string))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return got
}

// collectForwardAllowEmpty is collectForward but tolerates a tree whose
// leaf chain has been fully deleted down to nothing, where ForwardIter
// reports ErrNotInitialized rather than an empty iterator.
func collectForwardAllowEmpty(t *testing.T, tr *Tree) []string {
	t.Helper()
	it, err := tr.ForwardIter()
	if errors.Is(err, ErrNotInitialized) {
		return nil
	}
	if err != nil {
		t.Fatalf("ForwardIter: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		k, err := tr.DecodeKey(it.Node().Key)
		if err != nil {
			t.Fatalf("DecodeKey: %v", err)
		}
		got = append(got, k.(string))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return got
}

func collectReverse(t *testing.T, tr *Tree) []string {
	t.Helper()
	it, err := tr.ReverseIter()
	if err != nil {
		t.Fatalf("ReverseIter: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		k, err := tr.DecodeKey(it.Node().Key)
		if err != nil {
			t.Fatalf("DecodeKey: %v", err)
		}
		got = append(got, k.(string))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return got
}

// S1: a handful of inserts, fewer than KEYS_PER_NODE, never trigger a
// split.
func TestNoSplit(t *testing.T) {
	tr := newTestTree(t, 8)
	rootBefore := tr.Descriptor().RootPos

	for i := 0; i < 4; i++ {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	desc := tr.Descriptor()
	if desc.RootPos != rootBefore {
		t.Fatalf("expected root to stay at %d, got %d", rootBefore, desc.RootPos)
	}
	if desc.FirstPos != desc.RootPos || desc.LastPos != desc.RootPos {
		t.Fatalf("expected first=last=root for an unsplit tree, got %+v", desc)
	}

	for i := 0; i < 4; i++ {
		n, _, found, ctx, err := tr.Search(testKey(i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		defer ctx.Close()
		if !found {
			t.Fatalf("expected to find key %d", i)
		}
		v, err := tr.DecodeData(n.Data)
		if err != nil || v.(uint64) != uint64(i) {
			t.Fatalf("expected value %d, got %v (err %v)", i, v, err)
		}
	}
}

// S2: enough inserts to overflow one leaf creates a brand new root.
func TestLeafSplitNewRoot(t *testing.T) {
	tr := newTestTree(t, 4)
	rootBefore := tr.Descriptor().RootPos

	for i := 0; i < 6; i++ {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	desc := tr.Descriptor()
	if desc.RootPos == rootBefore {
		t.Fatal("expected a leaf split to have produced a new root")
	}
	if desc.FirstPos == desc.LastPos {
		t.Fatal("expected two distinct leaf elements after a split")
	}

	got := collectForward(t, tr)
	var want []string
	for i := 0; i < 6; i++ {
		want = append(want, testKey(i))
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("forward iteration mismatch: got %v, want %v", got, want)
	}
}

// S3: inserting in descending order must still produce ascending
// iteration order.
func TestReverseOrderInserts(t *testing.T) {
	tr := newTestTree(t, 4)

	for i := 19; i >= 0; i-- {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	got := collectForward(t, tr)
	if !sort.StringsAreSorted(got) {
		t.Fatalf("expected ascending order, got %v", got)
	}
	if len(got) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(got))
	}
}

// S4: enough inserts to cascade splits through at least two interior
// levels; every key must remain findable and iteration must stay sorted.
func TestInteriorSplitCascade(t *testing.T) {
	tr := newTestTree(t, MinKeysPerNode)
	const n = 200

	for i := 0; i < n; i++ {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		_, _, found, ctx, err := tr.Search(testKey(i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		ctx.Close()
		if !found {
			t.Fatalf("expected to find key %d after cascading splits", i)
		}
	}

	got := collectForward(t, tr)
	if len(got) != n || !sort.StringsAreSorted(got) {
		t.Fatalf("expected %d sorted entries, got %d (sorted=%v)", n, len(got), sort.StringsAreSorted(got))
	}
}

// checkOrderingAndCompleteness asserts P1 (strictly ascending forward
// iteration) and P2 (the yielded keys equal exactly the surviving set).
func checkOrderingAndCompleteness(t *testing.T, tr *Tree, present map[int]bool, n int) {
	t.Helper()
	got := collectForwardAllowEmpty(t, tr)
	if !sort.StringsAreSorted(got) {
		t.Fatalf("P1 violated: forward iteration not strictly ascending: %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] == got[i-1] {
			t.Fatalf("P1 violated: duplicate consecutive key %q", got[i])
		}
	}

	var want []string
	for i := 0; i < n; i++ {
		if present[i] {
			want = append(want, testKey(i))
		}
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("P2 violated: forward iteration mismatch:\ngot  %v\nwant %v", got, want)
	}
}

// checkSearchSoundness asserts P4: every surviving key is found with its
// original value, every deleted key is not found.
func checkSearchSoundness(t *testing.T, tr *Tree, present map[int]bool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		node, _, found, ctx, err := tr.Search(testKey(i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if found != present[i] {
			ctx.Close()
			t.Fatalf("P4 violated: key %d: found=%v, want %v", i, found, present[i])
		}
		if found {
			v, err := tr.DecodeData(node.Data)
			if err != nil || v.(uint64) != uint64(i) {
				ctx.Close()
				t.Fatalf("P4 violated: key %d: decoded value %v (err %v), want %d", i, v, err, i)
			}
		}
		ctx.Close()
	}
}

// checkParentConsistency asserts P5: walking from the root, every
// child's recorded Parent matches the element that currently routes to
// it (via Left or the trailing Right).
func checkParentConsistency(t *testing.T, tr *Tree) {
	t.Helper()
	ctx := newContext(tr)
	defer ctx.Close()

	var walk func(pos uint64) error
	walk = func(pos uint64) error {
		elem, err := ctx.ReadElem(pos)
		if err != nil {
			return err
		}
		for _, entry := range elem.NodeList.Entries {
			if entry.Left == 0 {
				continue
			}
			child, err := ctx.ReadElem(entry.Left)
			if err != nil {
				return err
			}
			if child.NodeList.Parent != pos {
				t.Fatalf("P5 violated: child %d reports parent %d, want %d", entry.Left, child.NodeList.Parent, pos)
			}
			if err := walk(entry.Left); err != nil {
				return err
			}
		}
		if ln := elem.NodeList.Len(); ln > 0 {
			if right := elem.NodeList.Entries[ln-1].Right; right != 0 {
				child, err := ctx.ReadElem(right)
				if err != nil {
					return err
				}
				if child.NodeList.Parent != pos {
					t.Fatalf("P5 violated: trailing child %d reports parent %d, want %d", right, child.NodeList.Parent, pos)
				}
				if err := walk(right); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(tr.Descriptor().RootPos); err != nil {
		t.Fatalf("walk: %v", err)
	}
}

// S5: 200 keys inserted in a fixed permutation, then deleted one by one
// in ascending key order, checking P1/P2/P4/P5 after every single
// delete. This drives the tree all the way down to empty, including the
// collapse of interior elements left routing to a single surviving
// child.
func TestRandomInsertDeleteMix(t *testing.T) {
	tr := newTestTree(t, 6)
	rng := rand.New(rand.NewSource(7))

	const n = 200
	present := make(map[int]bool, n)
	for _, i := range rng.Perm(n) {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
		present[i] = true
	}

	for i := 0; i < n; i++ {
		if err := tr.Delete(testKey(i)); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
		delete(present, i)

		checkOrderingAndCompleteness(t, tr, present, n)
		checkSearchSoundness(t, tr, present, n)
		checkParentConsistency(t, tr)
	}

	got := collectForwardAllowEmpty(t, tr)
	if len(got) != 0 {
		t.Fatalf("expected an empty leaf chain after deleting every key, got %v", got)
	}
	desc := tr.Descriptor()
	if desc.FirstPos != 0 || desc.LastPos != 0 {
		t.Fatalf("expected an empty leaf chain after deleting every key, got first=%d last=%d", desc.FirstPos, desc.LastPos)
	}
	for i := 0; i < n; i++ {
		_, _, found, ctx, err := tr.Search(testKey(i))
		if err != nil {
			t.Fatalf("Search(%d) on empty tree: %v", i, err)
		}
		ctx.Close()
		if found {
			t.Fatalf("key %d: expected not found in an empty tree", i)
		}
	}
}

// S6: the root descriptor survives a close/reopen cycle.
func TestDescriptorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.heap")

	hf, err := heapfile.Create(path, descriptorSize)
	if err != nil {
		t.Fatalf("heapfile.Create: %v", err)
	}
	tr, err := New(hf, codec.NewStringCodec(8), codec.NewUint64Codec(), 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	wantDesc := tr.Descriptor()
	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := hf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	hf2, err := heapfile.Open(path)
	if err != nil {
		t.Fatalf("heapfile.Open: %v", err)
	}
	t.Cleanup(func() { _ = hf2.Close() })

	raw, err := hf2.Read(hf2.DescriptorHandle())
	if err != nil {
		t.Fatalf("reading descriptor: %v", err)
	}
	gotDesc, err := DecodeRootDescriptor(raw)
	if err != nil {
		t.Fatalf("DecodeRootDescriptor: %v", err)
	}
	if gotDesc != wantDesc {
		t.Fatalf("descriptor mismatch after reopen: got %+v, want %+v", gotDesc, wantDesc)
	}

	tr2 := Open(hf2, gotDesc, codec.NewStringCodec(8), codec.NewUint64Codec(), 4)
	for i := 0; i < 10; i++ {
		_, _, found, ctx, err := tr2.Search(testKey(i))
		if err != nil {
			t.Fatalf("Search(%d) after reopen: %v", i, err)
		}
		ctx.Close()
		if !found {
			t.Fatalf("expected key %d to survive reopen", i)
		}
	}
}

// P3: forward and reverse iteration visit the same set of keys, in
// exactly opposite order.
func TestForwardReverseSymmetry(t *testing.T) {
	tr := newTestTree(t, 5)
	rng := rand.New(rand.NewSource(99))

	const n = 80
	order := rng.Perm(n)
	for _, i := range order {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	fwd := collectForward(t, tr)
	rev := collectReverse(t, tr)
	if len(fwd) != n || len(rev) != n {
		t.Fatalf("expected %d entries each way, got fwd=%d rev=%d", n, len(fwd), len(rev))
	}
	for i := range fwd {
		if fwd[i] != rev[n-1-i] {
			t.Fatalf("index %d: forward=%q, mirrored reverse=%q", i, fwd[i], rev[n-1-i])
		}
	}
}

// P5: after a run of splits, every child element's recorded Parent
// actually matches the element that currently routes to it.
func TestParentConsistency(t *testing.T) {
	tr := newTestTree(t, MinKeysPerNode)
	for i := 0; i < 150; i++ {
		if err := tr.Insert(testKey(i), uint64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	ctx := newContext(tr)
	defer ctx.Close()

	var walk func(pos uint64) error
	walk = func(pos uint64) error {
		elem, err := ctx.ReadElem(pos)
		if err != nil {
			return err
		}
		for _, entry := range elem.NodeList.Entries {
			if entry.Left == 0 {
				continue
			}
			child, err := ctx.ReadElem(entry.Left)
			if err != nil {
				return err
			}
			if child.NodeList.Parent != pos {
				t.Fatalf("child %d reports parent %d, want %d", entry.Left, child.NodeList.Parent, pos)
			}
			if err := walk(entry.Left); err != nil {
				return err
			}
		}
		if ln := elem.NodeList.Len(); ln > 0 {
			if right := elem.NodeList.Entries[ln-1].Right; right != 0 {
				child, err := ctx.ReadElem(right)
				if err != nil {
					return err
				}
				if child.NodeList.Parent != pos {
					t.Fatalf("trailing child %d reports parent %d, want %d", right, child.NodeList.Parent, pos)
				}
				if err := walk(right); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(tr.Descriptor().RootPos); err != nil {
		t.Fatalf("walk: %v", err)
	}
}
