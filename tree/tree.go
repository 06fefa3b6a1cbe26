// Package tree implements the dynamic binary-space-partition that
// subdivides a block address space among concurrent borrowers.
//
// A Tree is not safe for concurrent use by itself: it expects a single
// caller to serialize access. The allocator package is that caller: it
// wraps every Tree method in its own lock. Direct users of this
// package in tests must do the same.
package tree

import (
	"fmt"

	"github.com/diskfs/go-extent-allocator/extent"
	"github.com/diskfs/go-extent-allocator/internal/alloclog"
)

// ErrInvalidPoolSize is returned by New when nrNodes cannot address a
// usable node pool: there must be room for at least a root node, and
// every valid NodeID must be distinct from the NullNode sentinel.
type ErrInvalidPoolSize struct {
	NrNodes uint8
}

func (e *ErrInvalidPoolSize) Error() string {
	return fmt.Sprintf("tree: nr_nodes %d must be at least 1 and less than %d", e.NrNodes, NullNode)
}

// Tree is a BSP over [0, nrBlocks) held in a fixed-capacity node pool.
type Tree struct {
	nrBlocks  uint64
	nodes     []node
	freeNodes []NodeID
	root      NodeID
}

// New builds a Tree over [0, nrBlocks) with a single leaf root, backed
// by a pool of nrNodes node slots.
func New(nrBlocks uint64, nrNodes uint8) (*Tree, error) {
	if nrNodes == 0 || NodeID(nrNodes) >= NullNode {
		return nil, &ErrInvalidPoolSize{NrNodes: nrNodes}
	}

	t := &Tree{
		nrBlocks: nrBlocks,
		nodes:    make([]node, nrNodes),
	}
	t.resetPool()
	return t, nil
}

// resetPool returns every slot to the free list and installs a fresh
// single-leaf root over [0, t.nrBlocks).
func (t *Tree) resetPool() {
	n := len(t.nodes)
	for i := 0; i < n; i++ {
		t.nodes[i] = newInternal(0, 0, 0, NullNode, NullNode)
	}
	t.freeNodes = make([]NodeID, n)
	for i := 0; i < n; i++ {
		t.freeNodes[i] = NodeID(i)
	}

	root := t.allocNode()
	t.nodes[root] = newLeaf(extent.New(0, t.nrBlocks), 0)
	t.root = root
}

func (t *Tree) allocNode() NodeID {
	n := len(t.freeNodes)
	id := t.freeNodes[n-1]
	t.freeNodes = t.freeNodes[:n-1]
	return id
}

func (t *Tree) freeNode(id NodeID) {
	t.freeNodes = append(t.freeNodes, id)
}

// NrBlocks returns the size of the address space this tree covers.
func (t *Tree) NrBlocks() uint64 {
	return t.nrBlocks
}

// PoolSize returns the fixed number of node slots this tree owns.
func (t *Tree) PoolSize() int {
	return len(t.nodes)
}

// FreeNodeCount returns the number of node slots currently unused:
// together with the count of live nodes reachable from the root, this
// should always equal PoolSize.
func (t *Tree) FreeNodeCount() int {
	return len(t.freeNodes)
}

// selectChild picks which child borrow should recurse into: the one
// with the larger score = free_blocks / (holders + 1). Ties favor the
// left child.
func (t *Tree) selectChild(left, right NodeID) NodeID {
	l := t.nodes[left]
	r := t.nodes[right]

	lScore := l.freeBlocks() / uint64(l.holders+1)
	rScore := r.freeBlocks() / uint64(r.holders+1)

	if lScore >= rScore {
		return left
	}
	return right
}

// Borrow returns a leaf's extent, splitting or sharing as needed, or
// nil if the tree has nothing left to give out.
func (t *Tree) Borrow() *extent.Extent {
	return t.borrow(t.root)
}

func (t *Tree) borrow(idx NodeID) *extent.Extent {
	if idx == NullNode {
		return nil
	}

	n := t.nodes[idx]
	if !n.isLeaf() {
		var got *extent.Extent
		switch {
		case n.left == NullNode && n.right == NullNode:
			panic("tree: internal node with two null children")
		case n.left == NullNode:
			got = t.borrow(n.right)
		case n.right == NullNode:
			got = t.borrow(n.left)
		default:
			got = t.borrow(t.selectChild(n.left, n.right))
		}

		if got != nil {
			n.holders++
			t.nodes[idx] = n
		}
		return got
	}

	if n.holders > 0 {
		if t.splitLeaf(idx) {
			return t.borrow(idx)
		}
		// Can't split further: share the existing extent.
		n.holders++
		t.nodes[idx] = n
		return n.extent
	}

	n.holders++
	t.nodes[idx] = n
	return n.extent
}

// splitLeaf turns the leaf at idx into an internal node with two leaf
// children, the left reusing the original Extent object (narrowed)
// and the right a fresh one. Returns false, leaving the leaf
// untouched, if there isn't room in the pool or the leaf's free
// capacity is too small to be worth dividing.
func (t *Tree) splitLeaf(idx NodeID) bool {
	if len(t.freeNodes) < 2 {
		return false
	}

	n := t.nodes[idx]
	if !n.isLeaf() {
		panic("tree: splitLeaf called on an internal node")
	}

	_, end, cursor := n.extent.Snapshot()
	if end-cursor <= MinSplitCapacity {
		return false
	}

	mid := cursor + (end-cursor)/2
	n.extent.Narrow(mid)

	left := t.allocNode()
	right := t.allocNode()

	t.nodes[left] = newLeaf(n.extent, n.holders)
	t.nodes[right] = newLeaf(extent.New(mid, end), 0)
	t.nodes[idx] = newInternal(n.holders, mid, end-cursor, left, right)

	alloclog.Logger.WithFields(map[string]interface{}{
		"node": idx, "mid": mid, "left": left, "right": right,
	}).Debug("tree: split leaf")

	return true
}

// Release returns a previously-borrowed extent to the tree, pruning
// any subtree that has become fully drained and un-held.
func (t *Tree) Release(ex *extent.Extent) {
	begin := ex.Begin()
	t.root = t.release(begin, 0, t.nrBlocks, t.root)
}

func (t *Tree) release(block, begin, end uint64, idx NodeID) NodeID {
	if idx == NullNode {
		return idx
	}

	n := t.nodes[idx]

	if !n.isLeaf() {
		if n.holders == 0 {
			panic("tree: release called on internal node with zero holders")
		}

		left, right := n.left, n.right
		if block < n.cut {
			left = t.release(block, begin, n.cut, n.left)
		} else {
			right = t.release(block, n.cut, end, n.right)
		}

		switch {
		case left == NullNode && right == NullNode:
			t.freeNode(idx)
			return NullNode
		case left == NullNode:
			t.freeNode(idx)
			return right
		case right == NullNode:
			t.freeNode(idx)
			return left
		default:
			t.nodes[idx] = newInternal(n.holders-1, n.cut, t.freeBlocksOf(left)+t.freeBlocksOf(right), left, right)
			return idx
		}
	}

	if n.holders == 0 {
		panic("tree: release called on leaf with zero holders")
	}

	_, leafEnd, cursor := n.extent.Snapshot()
	n.holders--
	full := cursor == leafEnd

	if full && n.holders == 0 {
		t.freeNode(idx)
		alloclog.Logger.WithField("node", idx).Debug("tree: pruned drained leaf")
		return NullNode
	}

	t.nodes[idx] = n
	return idx
}

func (t *Tree) freeBlocksOf(idx NodeID) uint64 {
	if idx == NullNode {
		return 0
	}
	return t.nodes[idx].freeBlocks()
}

// Reset abandons the current tree shape and installs a fresh
// single-leaf root over [0, nrBlocks). Callers must first invalidate
// every outstanding holder context: Reset has no notion of contexts.
func (t *Tree) Reset() {
	t.resetPool()
}

// Resize behaves like Reset but covers [0, nrBlocks) with the new
// size.
func (t *Tree) Resize(nrBlocks uint64) {
	t.nrBlocks = nrBlocks
	t.resetPool()
}

// Root exposes the root NodeID, for tests that want to assert on
// overall tree shape (e.g. "root == NullNode after full drain").
func (t *Tree) Root() NodeID {
	return t.root
}
