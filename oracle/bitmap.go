// Package oracle provides a bitmap-backed implementation of the
// allocator's occupancy oracle contract: an external predicate that
// owns the ground truth of which blocks are actually free.
//
// A real deployment would back this with a bitmap on disk; BitmapOracle
// keeps the same byte-slice-of-bits representation and linear
// "first free bit from here" scan in memory, behind the allocator's
// Oracle signature (uint64 blocks, its own lock, Alloc rolling the
// scan and the set into one call).
package oracle

import (
	"fmt"
	"sync"
)

// BitmapOracle is a bitmap-backed occupancy oracle safe for concurrent
// use by multiple allocator contexts.
type BitmapOracle struct {
	mu       sync.Mutex
	bits     []byte
	nrBlocks uint64
}

// NewBitmapOracle creates an oracle over nrBlocks blocks, all initially
// free.
func NewBitmapOracle(nrBlocks uint64) *BitmapOracle {
	return &BitmapOracle{
		bits:     make([]byte, (nrBlocks+7)/8),
		nrBlocks: nrBlocks,
	}
}

func (b *BitmapOracle) isSet(block uint64) bool {
	byteIdx, bitIdx := block/8, block%8
	return b.bits[byteIdx]&(1<<bitIdx) != 0
}

func (b *BitmapOracle) set(block uint64) {
	byteIdx, bitIdx := block/8, block%8
	b.bits[byteIdx] |= 1 << bitIdx
}

func (b *BitmapOracle) clear(block uint64) {
	byteIdx, bitIdx := block/8, block%8
	b.bits[byteIdx] &^= 1 << bitIdx
}

// Alloc implements the allocator.Oracle contract: it scans
// [begin, end) for the first free block, marks it allocated, and
// returns it; it returns (nil, nil) if every block in the range is
// already allocated.
func (b *BitmapOracle) Alloc(begin, end uint64) (*uint64, error) {
	if begin > end || end > b.nrBlocks {
		return nil, fmt.Errorf("oracle: range [%d,%d) out of bounds for %d blocks", begin, end, b.nrBlocks)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for blk := begin; blk < end; blk++ {
		if !b.isSet(blk) {
			b.set(blk)
			return &blk, nil
		}
	}
	return nil, nil
}

// Free marks block free again, e.g. to model external deallocation
// independent of any extent: the tree only tracks capacity handed out
// to a leaf, not true block-level availability, so reclaiming a block
// is entirely the oracle's business.
func (b *BitmapOracle) Free(block uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clear(block)
}

// Preallocate marks the given blocks allocated up front, letting tests
// exercise the allocator against a partially-occupied address space.
func (b *BitmapOracle) Preallocate(blocks ...uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, blk := range blocks {
		b.set(blk)
	}
}

// CountSet returns the number of currently allocated blocks.
func (b *BitmapOracle) CountSet() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for blk := uint64(0); blk < b.nrBlocks; blk++ {
		if b.isSet(blk) {
			count++
		}
	}
	return count
}
