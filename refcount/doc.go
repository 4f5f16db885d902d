// Package refcount implements the dual-layout container and owning handle
// at the heart of the bridge.
//
// A container co-locates a foreign-shaped vtable struct, an atomic
// refcount, and an arbitrary safe payload in one allocation. The vtable
// struct is the container's first field and the capi.Base header is the
// vtable's first field, so the three pointers are interchangeable:
//
//	*Container[S, P]  ==  *S  ==  *capi.Base
//
// The foreign side only ever sees the narrower views. Trampolines use
// Borrow to recover the payload from a self pointer without touching the
// count; owning code uses Ptr, whose Clone/Release drive the foreign
// add-ref/release protocol.
//
// None of these operations can fail in the ordinary sense. The only hazard
// is protocol violation (refcount imbalance, a borrowed view outliving its
// call), which the API prevents structurally: Borrow returns a plain
// payload pointer with no destructor, and Release nils the handle it is
// called on.
package refcount
