// Package allocator is the façade over the partition tree: it hands
// out blocks to many independent allocation contexts, borrowing and
// releasing extents from the tree package and invalidating every
// holder of an extent the instant it becomes unusable.
package allocator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/diskfs/go-extent-allocator/internal/alloclog"
	"github.com/diskfs/go-extent-allocator/tree"
)

// Oracle inspects the real occupancy state for [begin, end), marks a
// free block allocated and returns it, or returns (nil, nil) if none
// of [begin, end) is free. Persistence and real free/used accounting
// are entirely the oracle's responsibility; the allocator only uses
// it to decide when an extent is exhausted.
type Oracle func(begin, end uint64) (*uint64, error)

// Allocator guards the partition tree's node pool, the holders map and
// every holder-chain pointer behind a single lock. Every exported
// method acquires it for the call's full duration, matching the
// minimal locking discipline of the design this module implements.
type Allocator struct {
	mu      sync.Mutex
	tree    *tree.Tree
	holders map[uint64]*ContextHandle
}

// New constructs an allocator over [0, nrBlocks) backed by a pool of
// nrNodes node slots. nrNodes must be in [1, 255); it is the hard cap
// on how finely the address space may be partitioned.
func New(nrBlocks uint64, nrNodes uint8) (*Allocator, error) {
	t, err := tree.New(nrBlocks, nrNodes)
	if err != nil {
		return nil, err
	}
	return &Allocator{
		tree:    t,
		holders: make(map[uint64]*ContextHandle),
	}, nil
}

// GetContext returns a fresh context holding no extent.
func (a *Allocator) GetContext() *ContextHandle {
	id, err := uuid.NewRandom()
	if err != nil {
		// crypto/rand failures are not something a caller can act on;
		// fall back to the zero UUID rather than surfacing an error
		// from what is otherwise a pure allocation.
		id = uuid.UUID{}
	}
	return &ContextHandle{id: id}
}

// PutContext releases ctx's extent, if it holds one, back to the tree
// and removes ctx from its holder chain. ctx must not be used again
// afterwards.
func (a *Allocator) PutContext(ctx *ContextHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ctx.extent == nil {
		return
	}

	ex := ctx.extent
	begin := ex.Begin()
	ctx.extent = nil
	a.removeHolder(begin, ctx)
	a.tree.Release(ex)
}

// Alloc returns the next block for ctx, borrowing a fresh extent from
// the tree when ctx doesn't already hold one and refetching whenever
// the oracle reports the current extent exhausted. It returns
// (nil, nil) when the tree has nothing left to borrow ("out of
// space") and propagates any error from oracle unchanged, leaving
// ctx's extent and its cursor as they were (an extent borrowed earlier
// in the same call is kept).
func (a *Allocator) Alloc(ctx *ContextHandle, oracle Oracle) (*uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		if ctx.extent == nil {
			ex := a.tree.Borrow()
			if ex == nil {
				return nil, nil
			}
			ctx.extent = ex
			a.addHolder(ex.Begin(), ctx)
		}

		_, end, cursor := ctx.extent.Snapshot()

		block, err := oracle(cursor, end)
		if err != nil {
			return nil, err
		}

		if block != nil {
			exhausted := ctx.extent.Advance(*block)
			if exhausted {
				a.invalidateAndRelease(ctx)
			}
			return block, nil
		}

		ctx.extent.MarkExhausted()
		a.invalidateAndRelease(ctx)
	}
}

// invalidateAndRelease invalidates every holder of ctx's current
// extent (including ctx itself) and returns it to the tree once per
// invalidated holder, so the leaf's holder count drops to zero.
func (a *Allocator) invalidateAndRelease(ctx *ContextHandle) {
	ex := ctx.extent
	begin := ex.Begin()
	count := 0
	for c := a.holders[begin]; c != nil; c = c.next {
		count++
	}
	a.resetChain(begin)
	for i := 0; i < count; i++ {
		a.tree.Release(ex)
	}
}

// Reset invalidates every outstanding context and rebuilds the tree
// as a single leaf over [0, NrBlocks()).
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetAllChains()
	a.tree.Reset()
	alloclog.Logger.Debug("allocator: reset")
}

// Resize invalidates every outstanding context and rebuilds the tree
// as a single leaf over [0, nrBlocks).
func (a *Allocator) Resize(nrBlocks uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetAllChains()
	a.tree.Resize(nrBlocks)
	alloclog.Logger.WithField("nr_blocks", nrBlocks).Debug("allocator: resized")
}

// NrBlocks returns the size of the address space the allocator covers.
func (a *Allocator) NrBlocks() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.NrBlocks()
}

// Stats returns a structural snapshot of the underlying tree, useful
// for tests and diagnostics.
func (a *Allocator) Stats() tree.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.Stats()
}
