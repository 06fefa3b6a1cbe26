package allocator

import "github.com/diskfs/go-extent-allocator/internal/alloclog"

// addHolder inserts ctx at the head of the chain for the leaf whose
// extent begins at begin.
func (a *Allocator) addHolder(begin uint64, ctx *ContextHandle) {
	if head, ok := a.holders[begin]; ok {
		ctx.next = head
		head.prev = ctx
	}
	a.holders[begin] = ctx
}

// removeHolder unlinks ctx from the chain keyed by begin, repointing
// neighbours and, if necessary, the map's head pointer so the map
// always names a live member of the chain (see DESIGN.md's open
// question on this).
func (a *Allocator) removeHolder(begin uint64, ctx *ContextHandle) {
	prev, next := ctx.prev, ctx.next

	switch {
	case prev == nil && next == nil:
		delete(a.holders, begin)
	case prev == nil:
		a.holders[begin] = next
		next.prev = nil
	case next == nil:
		prev.next = nil
	default:
		prev.next = next
		next.prev = prev
	}

	ctx.prev = nil
	ctx.next = nil
}

// resetChain clears extent/prev/next for every context on the chain
// keyed by begin and removes the chain from the map entirely, so each
// holder will borrow a fresh extent on its next Alloc call.
func (a *Allocator) resetChain(begin uint64) {
	head, ok := a.holders[begin]
	if !ok {
		return
	}
	delete(a.holders, begin)

	count := 0
	for c := head; c != nil; {
		next := c.next
		c.extent = nil
		c.prev = nil
		c.next = nil
		c = next
		count++
	}
	alloclog.Logger.WithFields(map[string]interface{}{"begin": begin, "holders": count}).Debug("allocator: invalidated chain")
}

// resetAllChains invalidates every context in every chain, required
// before Reset/Resize tears down the tree out from under them.
func (a *Allocator) resetAllChains() {
	for begin, head := range a.holders {
		for c := head; c != nil; {
			next := c.next
			c.extent = nil
			c.prev = nil
			c.next = nil
			c = next
		}
		delete(a.holders, begin)
	}
}
