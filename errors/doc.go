// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind
// (error category). The Error type includes the object kind and vtable
// slot involved, plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseTrampoline, errors.KindPanic).
//		Object("client").
//		Slot("on-complete").
//		Detail("recovered: %v", r).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.SlotPanic("client", "on-complete", r)
//	err := errors.NotFound(handle)
//
// All errors implement the standard error interface and support
// errors.Is/As. Note the boundary itself has no error channel: a failure
// inside a trampoline is logged and converted to the call's sentinel, so
// these values only ever travel between safe components.
package errors
