// Package guard contains panics at trampoline boundaries.
//
// The foreign side has no exception mechanism, so nothing may unwind
// across a vtable slot. Every trampoline body runs inside a Boundary
// variant matching its return shape; an escaped panic is logged through
// the library logger and converted to the slot's documented failure
// sentinel.
package guard

import (
	"go.uber.org/zap"

	"github.com/embercef/bridge"
	"github.com/embercef/bridge/errors"
)

// Boundary runs fn for a void-returning slot. A panic becomes a no-op.
func Boundary(object, slot string, fn func()) {
	defer contain(object, slot)
	fn()
}

// BoundaryBool runs fn for a boolean-returning slot. A panic becomes
// false, the conservative default.
func BoundaryBool(object, slot string, fn func() bool) (result bool) {
	defer contain(object, slot)
	return fn()
}

// BoundaryInt32 runs fn for an integer-returning slot. A panic becomes
// the supplied sentinel.
func BoundaryInt32(object, slot string, sentinel int32, fn func() int32) (result int32) {
	result = sentinel
	defer contain(object, slot)
	return fn()
}

func contain(object, slot string) {
	r := recover()
	if r == nil {
		return
	}
	bridge.Logger().Error("panic contained at trampoline boundary",
		zap.Error(errors.SlotPanic(object, slot, r)),
		zap.Stack("stack"),
	)
}
