// Package oneshot provides a guarded, take-once slot for completion
// callbacks the foreign side guarantees to invoke at most once, but which
// safe code cannot assume is invoked at least once.
//
// Taking and dropping are serialized by a lock, so an in-flight callback
// racing the owning container's last release never both observe a
// populated cell. A cell that is never taken simply drops its closure when
// the cell is dropped; silent cancellation, not an error.
package oneshot

import "sync"

// Cell holds at most one movable closure. The closure is removed by the
// first Take; every later Take, and any Take after Drop, reports absence.
type Cell[F any] struct {
	mu sync.Mutex
	fn *F
}

// NewCell creates a populated cell.
func NewCell[F any](fn F) *Cell[F] {
	return &Cell[F]{fn: &fn}
}

// Take removes the closure from the cell. The caller invokes it outside
// the lock, so a slow callback never blocks cancellation.
func (c *Cell[F]) Take() (F, bool) {
	c.mu.Lock()
	fn := c.fn
	c.fn = nil
	c.mu.Unlock()

	if fn == nil {
		var zero F
		return zero, false
	}
	return *fn, true
}

// Drop empties the cell without invoking the closure. Dropping an already
// empty cell is a no-op.
func (c *Cell[F]) Drop() {
	c.mu.Lock()
	c.fn = nil
	c.mu.Unlock()
}

// Empty reports whether the closure has been taken or dropped.
func (c *Cell[F]) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fn == nil
}
