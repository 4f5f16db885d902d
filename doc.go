// Package bridge is the root of a generic interop bridge between safe Go
// code and a foreign object system exposed as C-shaped structures:
// intrusively reference-counted objects whose behavior is a table of
// function pointers, some of which are invoked on threads the caller does
// not control.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	bridge/           Root package with the shared logger
//	├── capi/         Foreign ABI model: object header, wide strings, scalars
//	├── refcount/     Dual-layout container, owning handles, borrowed views
//	├── wrap/         Vtable construction and trampoline generation
//	├── oneshot/      Take-once cells for at-most-once completion callbacks
//	├── confined/     Documented single-thread access wrapper
//	├── guard/        Panic containment at trampoline boundaries
//	├── registry/     Live-object pin table for integer-handle boundaries
//	├── errors/       Structured error types for debugging
//	└── foreignsim/   Simulated foreign runtimes (native and wazero-backed)
//
// # Quick Start
//
// Hand a client across the boundary and let the foreign side call it back:
//
//	client := wrap.WrapClient(myClient)
//	defer client.Release()
//
//	drv := foreignsim.NewDriver()
//	req := drv.NewRequest("https://example.com")
//	drv.CompleteAsync(client.Clone(), req)
//
// Wrap a one-shot completion closure:
//
//	done := wrap.WrapCompletion(func(path string, ok bool) {
//	    fmt.Println(path, ok)
//	})
//	defer done.Release()
//
// # Ownership Protocol
//
// Every live refcount.Ptr corresponds to one unit of refcount on the
// underlying object. Clone increments, Release decrements, and the last
// Release tears the container down. Raw pointers received inside a
// trampoline are borrowed for the duration of that call only; clone the
// handle to keep the object past the call.
package bridge
