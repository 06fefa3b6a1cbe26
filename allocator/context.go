package allocator

import (
	"github.com/google/uuid"

	"github.com/diskfs/go-extent-allocator/extent"
)

// ContextHandle is an allocation context: the unit that drives alloc
// calls and, between invalidations, owns a private extent.
//
// prev/next link a ContextHandle into the doubly-linked chain of
// holders for whichever leaf's extent it currently holds (see
// holders.go). A manually-managed ownership model would need prev to
// be a weak handle to avoid a retain cycle; Go is garbage collected,
// so a plain pointer is fine here.
type ContextHandle struct {
	id uuid.UUID

	extent *extent.Extent
	prev   *ContextHandle
	next   *ContextHandle
}

// ID returns a stable identifier for this context, useful for
// correlating debug log lines and demo output across goroutines.
func (c *ContextHandle) ID() uuid.UUID {
	return c.id
}

// HasExtent reports whether this context currently holds a leaf's
// extent. It is a snapshot: nothing stops another call to Alloc from
// having it invalidated immediately after this returns.
func (c *ContextHandle) HasExtent() bool {
	return c.extent != nil
}
