package tree

import (
	"sort"
	"testing"

	"github.com/diskfs/go-extent-allocator/extent"
)

func mustNew(t *testing.T, nrBlocks uint64, nrNodes uint8) *Tree {
	t.Helper()
	tr, err := New(nrBlocks, nrNodes)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", nrBlocks, nrNodes, err)
	}
	return tr
}

func TestNewSingleLeafRoot(t *testing.T) {
	tr := mustNew(t, 1024, 3)
	if tr.Root() == NullNode {
		t.Fatal("fresh tree has a NULL root")
	}
	st := tr.Stats()
	if st.NodeCount != 1 || st.LeafCount != 1 {
		t.Fatalf("fresh tree stats = %+v, want exactly one leaf node", st)
	}
	if tr.FreeNodeCount() != 2 {
		t.Fatalf("FreeNodeCount() = %d, want 2 (3 slots, 1 used)", tr.FreeNodeCount())
	}
}

func TestInvalidPoolSize(t *testing.T) {
	if _, err := New(1024, 0); err == nil {
		t.Fatal("New with nr_nodes=0 should fail")
	}
	if _, err := New(1024, 255); err == nil {
		t.Fatal("New with nr_nodes=255 (== NullNode) should fail")
	}
}

// nr_blocks=1024, nr_nodes=3. Four successive borrows on an empty
// tree exhaust the pool after one split, leaving two leaves of 512
// blocks each shared by two borrowers apiece.
func TestSharedLeafOnSmallPool(t *testing.T) {
	tr := mustNew(t, 1024, 3)

	type got struct {
		begin, end uint64
	}
	var exts []*extent.Extent
	for i := 0; i < 4; i++ {
		ex := tr.Borrow()
		if ex == nil {
			t.Fatalf("borrow %d returned nil", i)
		}
		exts = append(exts, ex)
	}

	// Snapshot only after all borrows: the split narrows the first
	// borrowed extent in place.
	var all []got
	for _, ex := range exts {
		b, e, _ := ex.Snapshot()
		all = append(all, got{b, e})
	}

	if tr.FreeNodeCount() != 0 {
		t.Fatalf("FreeNodeCount() = %d, want 0 (pool exhausted by the one possible split)", tr.FreeNodeCount())
	}

	groups := map[got]int{}
	for _, g := range all {
		groups[g]++
	}
	if len(groups) != 2 {
		t.Fatalf("expected exactly 2 distinct extents across 4 borrows, got %v", groups)
	}
	for g, count := range groups {
		if count != 2 {
			t.Fatalf("extent %+v borrowed %d times, want 2", g, count)
		}
		if g.end-g.begin != 512 {
			t.Fatalf("extent %+v is not a half split of [0,1024)", g)
		}
	}

	// A fifth borrow must still succeed by sharing further.
	if ex := tr.Borrow(); ex == nil {
		t.Fatal("fifth borrow should still share an existing leaf")
	}
}

// borrowing twice causes one split; draining and releasing both
// leaves collapses the tree entirely.
func TestPruningAfterExhaustion(t *testing.T) {
	tr := mustNew(t, 1024, 3)

	a := tr.Borrow()
	b := tr.Borrow()
	if a == nil || b == nil {
		t.Fatal("expected two successful borrows")
	}

	drain(a)
	drain(b)

	tr.Release(a)
	tr.Release(b)

	if tr.Root() != NullNode {
		t.Fatalf("Root() = %v, want NullNode after both leaves drain and release", tr.Root())
	}
	if tr.FreeNodeCount() != 3 {
		t.Fatalf("FreeNodeCount() = %d, want 3 (fully collapsed)", tr.FreeNodeCount())
	}
}

// after borrowing twice (one split), draining and releasing only
// the leaf covering [0,512) frees exactly one slot and leaves the
// remaining leaf's subtree available for a further split.
func TestNodeReuseAfterPartialRelease(t *testing.T) {
	tr := mustNew(t, 1024, 3)

	a := tr.Borrow()
	b := tr.Borrow()
	if a == nil || b == nil {
		t.Fatal("expected two successful borrows")
	}

	low, high := a, b
	if low.Begin() > high.Begin() {
		low, high = high, low
	}

	drain(low)
	tr.Release(low)

	if tr.FreeNodeCount() != 2 {
		t.Fatalf("FreeNodeCount() = %d, want 2 after releasing one of two leaves", tr.FreeNodeCount())
	}

	next := tr.Borrow()
	if next == nil {
		t.Fatal("expected the remaining subtree to still be borrowable")
	}
	nb, ne, _ := next.Snapshot()
	if nb < high.Begin() || ne > 1024 {
		t.Fatalf("next borrow %d..%d escaped the surviving [%d,1024) subtree", nb, ne, high.Begin())
	}
	if ne-nb >= 512 {
		t.Fatalf("next borrow %d..%d should be a further split of the surviving half, not the whole half", nb, ne)
	}
}

func TestReleaseAfterMarkExhaustedFreesLeafOnlyWhenUnheld(t *testing.T) {
	tr := mustNew(t, 256, 4)

	a := tr.Borrow()
	b := tr.Borrow() // forces a split: a and b now each hold one half
	if a == nil || b == nil {
		t.Fatal("expected two borrows")
	}

	// With one free slot left no further split is possible, so a third
	// borrow must share one of the two leaves, giving it two holders.
	c := tr.Borrow()
	if c == nil {
		t.Fatal("expected a third, shared, borrow")
	}

	// Drain and release the shared leaf's first holder: since another
	// holder remains, the node must NOT be freed yet.
	shared := &nodeRef{a, c}
	if c.Begin() != a.Begin() {
		shared = &nodeRef{b, c}
	}

	drain(shared.first)
	before := tr.FreeNodeCount()
	tr.Release(shared.first)
	if tr.FreeNodeCount() != before {
		t.Fatalf("releasing a drained but still-held leaf changed FreeNodeCount from %d to %d", before, tr.FreeNodeCount())
	}

	drain(shared.second)
	tr.Release(shared.second)
	// Freeing the last holder frees the leaf's own slot and, since the
	// parent internal node is left with a single child, that parent too.
	if tr.FreeNodeCount() != before+2 {
		t.Fatalf("FreeNodeCount() = %d, want %d after the last holder releases a drained, now-unshared leaf", tr.FreeNodeCount(), before+2)
	}
}

type nodeRef struct {
	first, second *extent.Extent
}

func TestResizeRebuildsSingleLeaf(t *testing.T) {
	tr := mustNew(t, 1024, 5)
	tr.Borrow()
	tr.Borrow()

	tr.Resize(2048)

	if tr.NrBlocks() != 2048 {
		t.Fatalf("NrBlocks() = %d, want 2048", tr.NrBlocks())
	}
	st := tr.Stats()
	if st.LeafCount != 1 || st.NodeCount != 1 {
		t.Fatalf("Stats() = %+v, want a single fresh leaf after resize", st)
	}
	if len(st.Leaves) != 1 || st.Leaves[0].Begin != 0 || st.Leaves[0].End != 2048 {
		t.Fatalf("leaf after resize = %+v, want [0,2048)", st.Leaves)
	}
	if tr.FreeNodeCount() != 4 {
		t.Fatalf("FreeNodeCount() = %d, want 4 (5 slots, 1 used)", tr.FreeNodeCount())
	}
}

func TestPoolConservation(t *testing.T) {
	tr := mustNew(t, 4096, 15)

	var held []*extent.Extent
	for i := 0; i < 40; i++ {
		if ex := tr.Borrow(); ex != nil {
			held = append(held, ex)
		}
	}

	st := tr.Stats()
	if st.NodeCount+tr.FreeNodeCount() != tr.PoolSize() {
		t.Fatalf("node count %d + free %d != pool size %d", st.NodeCount, tr.FreeNodeCount(), tr.PoolSize())
	}

	// Release every other held extent, in order of begin, and re-check
	// conservation at every step.
	sort.Slice(held, func(i, j int) bool { return held[i].Begin() < held[j].Begin() })
	for i, ex := range held {
		if i%2 == 0 {
			drain(ex)
			tr.Release(ex)
			st := tr.Stats()
			if st.NodeCount+tr.FreeNodeCount() != tr.PoolSize() {
				t.Fatalf("after release %d: node count %d + free %d != pool size %d", i, st.NodeCount, tr.FreeNodeCount(), tr.PoolSize())
			}
		}
	}
}

// drain forces an extent's cursor to its end without going through an
// oracle, for tests that only care about tree-level pruning behavior.
func drain(e *extent.Extent) {
	e.MarkExhausted()
}
