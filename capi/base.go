package capi

// Destroyed and Alive are the values Release reports back to the foreign
// side, which uses them to null out cached pointers.
const (
	Alive     int32 = 0
	Destroyed int32 = 1
)

// Base is the header shared by every foreign-shaped object. It must be the
// first field of every vtable struct so that a pointer to the vtable is
// bit-compatible with a pointer to the header.
//
// Any slot may be nil; the foreign library treats a nil slot as "operation
// unsupported" and must not call through it.
type Base struct {
	// Size is the size in bytes of the full vtable struct this header
	// begins. The foreign library uses it for version/layout checks.
	Size uintptr

	// AddRef adds one unit of refcount. Never fails.
	AddRef func(self *Base)

	// Release removes one unit of refcount and reports Destroyed when the
	// call just tore the object down, Alive otherwise.
	Release func(self *Base) int32

	// HasOneRef reports 1 when the snapshot count is exactly one.
	HasOneRef func(self *Base) int32

	// HasAtLeastOneRef reports 1 when the snapshot count is one or more.
	HasAtLeastOneRef func(self *Base) int32
}

// Bool converts a boundary 0/1 integer to a Go bool.
func Bool(v int32) bool { return v != 0 }

// CBool converts a Go bool to the boundary 0/1 representation.
func CBool(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
