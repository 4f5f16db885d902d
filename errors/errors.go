package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseWrap       Phase = "wrap"       // vtable construction
	PhaseTrampoline Phase = "trampoline" // foreign-to-safe dispatch
	PhaseConvert    Phase = "convert"    // argument/result conversion
	PhaseRegistry   Phase = "registry"   // pin table operations
	PhaseSim        Phase = "sim"        // simulated foreign runtime
)

// Kind categorizes the error
type Kind string

const (
	KindPanic          Kind = "panic"
	KindUnsupported    Kind = "unsupported"
	KindInvalidUTF16   Kind = "invalid_utf16"
	KindNullObject     Kind = "null_object"
	KindBadLayout      Kind = "bad_layout"
	KindRegistryClosed Kind = "registry_closed"
	KindNotFound       Kind = "not_found"
	KindKindMismatch   Kind = "kind_mismatch"
	KindInstantiation  Kind = "instantiation"
	KindGuestTrap      Kind = "guest_trap"
)

// Error is the structured error type used throughout the bridge.
//
// Errors never cross the foreign boundary; trampolines convert failures to
// the call's sentinel and log. These values surface on the safe-to-safe
// edges: registry operations, simulator setup, wrapping.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Object string // object kind, e.g. "client"
	Slot   string // vtable slot, e.g. "on-complete"
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Object != "" {
		b.WriteString(" on ")
		b.WriteString(e.Object)
		if e.Slot != "" {
			b.WriteByte('.')
			b.WriteString(e.Slot)
		}
	} else if e.Slot != "" {
		b.WriteString(" on ")
		b.WriteString(e.Slot)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Object sets the object kind name
func (b *Builder) Object(kind string) *Builder {
	b.err.Object = kind
	return b
}

// Slot sets the vtable slot name
func (b *Builder) Slot(name string) *Builder {
	b.err.Slot = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// SlotPanic records a panic caught at a trampoline boundary
func SlotPanic(object, slot string, recovered any) *Error {
	return &Error{
		Phase:  PhaseTrampoline,
		Kind:   KindPanic,
		Object: object,
		Slot:   slot,
		Detail: fmt.Sprintf("recovered: %v", recovered),
		Value:  recovered,
	}
}

// Unsupported records an absent capability
func Unsupported(object, slot string) *Error {
	return &Error{
		Phase:  PhaseConvert,
		Kind:   KindUnsupported,
		Object: object,
		Slot:   slot,
		Detail: "slot not populated",
	}
}

// InvalidUTF16 records malformed wide-string data
func InvalidUTF16(slot string, units int) *Error {
	return &Error{
		Phase:  PhaseConvert,
		Kind:   KindInvalidUTF16,
		Slot:   slot,
		Detail: fmt.Sprintf("malformed sequence in %d code units", units),
	}
}

// NullObject records a nil object pointer where one was required
func NullObject(phase Phase, object string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNullObject,
		Object: object,
		Detail: "nil object pointer",
	}
}

// BadLayout records a vtable struct that violates the header-first rule
func BadLayout(typeName string) *Error {
	return &Error{
		Phase:  PhaseWrap,
		Kind:   KindBadLayout,
		Detail: fmt.Sprintf("%s must have capi.Base as its first field", typeName),
	}
}

// RegistryClosed records an operation against a closed pin table
func RegistryClosed() *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindRegistryClosed,
		Detail: "pin table closed",
	}
}

// NotFound records an unresolvable pin handle
func NotFound(handle uint32) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("no live object pinned at %d", handle),
		Value:  handle,
	}
}

// KindMismatch records a pin resolved under the wrong object kind
func KindMismatch(handle uint32, want, got string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindKindMismatch,
		Detail: fmt.Sprintf("pin %d holds %q, want %q", handle, got, want),
		Value:  handle,
	}
}

// Instantiation records a simulator guest that failed to start
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseSim,
		Kind:   KindInstantiation,
		Detail: "instantiate guest module",
		Cause:  cause,
	}
}

// GuestTrap records a guest call that trapped
func GuestTrap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseSim,
		Kind:   KindGuestTrap,
		Detail: fmt.Sprintf("guest export %q trapped", export),
		Cause:  cause,
	}
}
