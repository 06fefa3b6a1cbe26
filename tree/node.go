package tree

import "github.com/diskfs/go-extent-allocator/extent"

// NodeID indexes into a Tree's fixed-capacity node pool. NullNode is
// the sentinel denoting "no child" / "no node".
type NodeID uint8

// NullNode marks the absence of a node. It is also the hard upper
// bound on pool size: valid NodeIDs are [0, NullNode).
const NullNode NodeID = 255

// MinSplitCapacity is the smallest free capacity (end-cursor) a leaf
// must have before the tree will attempt to split it. A leaf at or
// below this capacity is shared instead.
const MinSplitCapacity = 16

type nodeKind uint8

const (
	kindInternal nodeKind = iota
	kindLeaf
)

// node is a tagged union of the tree's two node shapes. Both shapes
// carry a holders count, so that field is unified rather than
// duplicated per-kind.
type node struct {
	kind    nodeKind
	holders uint32

	// internal-only fields
	cut          uint64
	nrFreeBlocks uint64
	left, right  NodeID

	// leaf-only field
	extent *extent.Extent
}

func newInternal(holders uint32, cut, nrFreeBlocks uint64, left, right NodeID) node {
	return node{
		kind:         kindInternal,
		holders:      holders,
		cut:          cut,
		nrFreeBlocks: nrFreeBlocks,
		left:         left,
		right:        right,
	}
}

func newLeaf(ex *extent.Extent, holders uint32) node {
	return node{
		kind:    kindLeaf,
		holders: holders,
		extent:  ex,
		left:    NullNode,
		right:   NullNode,
	}
}

func (n node) isLeaf() bool {
	return n.kind == kindLeaf
}

// freeBlocks reports this node's free-block hint: stored directly for
// an internal node, derived from the live extent for a leaf.
func (n node) freeBlocks() uint64 {
	if n.kind == kindLeaf {
		return n.extent.FreeCapacity()
	}
	return n.nrFreeBlocks
}
