package refcount

import (
	"unsafe"

	"github.com/embercef/bridge/capi"
)

// Ptr is an owning handle over a raw foreign object pointer. Every live
// Ptr corresponds to one unit of refcount on the underlying object:
// Clone increments, Release decrements, and the last Release tears the
// container down.
//
// The protocol is identical for objects the bridge built itself and for
// objects originated by the foreign library; both are driven through the
// capi.Base slots.
//
// The zero Ptr is inert: every method on it is a no-op.
type Ptr[S any] struct {
	raw *S
}

// Adopt wraps a raw pointer whose refcount unit is already owned by the
// caller (the convention for pointers received as return values).
func Adopt[S any](raw *S) Ptr[S] {
	return Ptr[S]{raw: raw}
}

// Retain wraps a raw pointer the caller does not own, taking a new
// refcount unit first (the convention for pointers received as call
// parameters that must outlive the call).
func Retain[S any](raw *S) Ptr[S] {
	p := Ptr[S]{raw: raw}
	if b := p.Base(); b != nil && b.AddRef != nil {
		b.AddRef(b)
	}
	return p
}

// IsNil reports whether the handle wraps no object, the boundary's
// representation of an absent capability.
func (p Ptr[S]) IsNil() bool { return p.raw == nil }

// Raw returns the underlying pointer without transferring ownership.
func (p Ptr[S]) Raw() *S { return p.raw }

// Base returns the object header view of the pointer, or nil.
func (p Ptr[S]) Base() *capi.Base {
	if p.raw == nil {
		return nil
	}
	return (*capi.Base)(unsafe.Pointer(p.raw))
}

// Clone takes a new refcount unit and returns a second owning handle.
func (p Ptr[S]) Clone() Ptr[S] {
	if b := p.Base(); b != nil && b.AddRef != nil {
		b.AddRef(b)
	}
	return p
}

// Release gives up this handle's refcount unit and nils the handle, so a
// second Release through the same handle is a no-op rather than a double
// free. When the release tears the object down, the container has already
// been destroyed by the time Release returns.
func (p *Ptr[S]) Release() {
	b := p.Base()
	p.raw = nil
	if b != nil && b.Release != nil {
		b.Release(b)
	}
}

// HasOneRef reports whether the snapshot count is exactly one. Reports
// false when the object is absent or the slot is unsupported.
func (p Ptr[S]) HasOneRef() bool {
	b := p.Base()
	if b == nil || b.HasOneRef == nil {
		return false
	}
	return capi.Bool(b.HasOneRef(b))
}

// HasAtLeastOneRef reports whether the snapshot count is one or more.
// Reports false when the object is absent or the slot is unsupported.
func (p Ptr[S]) HasAtLeastOneRef() bool {
	b := p.Base()
	if b == nil || b.HasAtLeastOneRef == nil {
		return false
	}
	return capi.Bool(b.HasAtLeastOneRef(b))
}
