// Package confined wraps a payload in a documented single-thread access
// contract: the value is only ever touched on the thread the enclosing
// API's documentation names, which the type system cannot see.
//
// The wrapper is deliberately the weakest link in the bridge's model. It
// takes no lock; correctness comes from the caller upholding the
// documented contract. When EnableCheck is on, the wrapper binds to the
// first accessing goroutine and turns a contract violation into a panic
// with a clear report instead of silent corruption.
package confined

import (
	"fmt"
	"sync/atomic"

	"github.com/embercef/bridge/internal/goid"
)

// checkEnabled gates the runtime confinement assertion. Off by default;
// the check costs a stack header parse per access.
var checkEnabled atomic.Bool

// EnableCheck toggles the runtime confinement assertion for all wrappers.
func EnableCheck(on bool) {
	checkEnabled.Store(on)
}

// Confined asserts that the enclosed payload may cross an API boundary
// requiring transferability, while actual access stays on one goroutine.
type Confined[T any] struct {
	value T
	owner atomic.Uint64 // goroutine id bound on first access; 0 = unbound
}

// New wraps a payload. No owner is bound until the first Get.
func New[T any](value T) *Confined[T] {
	return &Confined[T]{value: value}
}

// Get returns the payload. Callable only from the thread the enclosing
// call's documentation guarantees will invoke it; with EnableCheck on,
// crossing goroutines panics instead.
func (c *Confined[T]) Get() *T {
	if checkEnabled.Load() {
		c.assertOwner()
	}
	return &c.value
}

func (c *Confined[T]) assertOwner() {
	id := goid.Current()
	if id == 0 {
		return
	}
	if c.owner.CompareAndSwap(0, id) {
		return
	}
	if owner := c.owner.Load(); owner != id {
		panic(fmt.Sprintf(
			"confined: payload bound to goroutine %d accessed from goroutine %d",
			owner, id))
	}
}
