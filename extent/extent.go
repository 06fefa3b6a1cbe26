// Package extent implements the half-open block range with a monotone
// cursor that every leaf of the allocator's partition tree ultimately
// hands out.
package extent

import "sync"

// Extent is a half-open run of blocks [Begin, End) together with a
// monotone Cursor marking how much of the run has been consumed.
//
// An Extent may be shared by several holders at once (when the tree
// could not split further); every access to Cursor/End is therefore
// serialized through the Extent's own lock, independent of whatever
// lock a caller (the tree, the allocator) already holds.
type Extent struct {
	mu sync.Mutex

	begin  uint64
	end    uint64
	cursor uint64
}

// New creates an Extent covering [begin, end) with the cursor
// positioned at begin.
func New(begin, end uint64) *Extent {
	return &Extent{begin: begin, end: end, cursor: begin}
}

// Begin returns the extent's starting block. begin is fixed at
// construction and never mutated, so no lock is needed to read it.
func (e *Extent) Begin() uint64 {
	return e.begin
}

// Snapshot returns a consistent view of begin, end and cursor.
func (e *Extent) Snapshot() (begin, end, cursor uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begin, e.end, e.cursor
}

// FreeCapacity returns end-cursor, the number of blocks not yet
// consumed from this extent.
func (e *Extent) FreeCapacity() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.end - e.cursor
}

// Advance records that block b has just been handed out, moving the
// cursor to b+1. It reports whether the extent is now fully consumed
// (cursor == end).
func (e *Extent) Advance(b uint64) (exhausted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = b + 1
	return e.cursor == e.end
}

// MarkExhausted forces the cursor to end, recording "no free capacity
// found here" even though blocks in [cursor, end) were never consumed
// by this extent (the oracle reported none free).
func (e *Extent) MarkExhausted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = e.end
}

// Narrow shrinks end to newEnd in place. Used by the tree when
// splitting a leaf: the left child keeps this same Extent object (so
// existing holders keep their cursor) with its end narrowed to the
// split point.
func (e *Extent) Narrow(newEnd uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.end = newEnd
}
