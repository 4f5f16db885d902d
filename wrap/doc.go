// Package wrap turns safe values into foreign-shaped objects and foreign
// object pointers back into safe values.
//
// Construction takes a capability-implementing value, probes its optional
// interfaces, and emits a vtable whose every supported slot points to a
// trampoline; unsupported capabilities leave their slots nil, which the
// foreign side reads as "operation unavailable". Each trampoline recovers
// the payload from the call's self pointer as a borrowed view, converts
// the remaining parameters into safe domain values, dispatches, and
// converts the result back. Trampoline bodies run inside guard boundaries
// so no panic ever unwinds across the vtable.
//
// Object pointers received as call parameters are borrowed for the
// duration of the call: trampolines retain them, hand the safe wrapper to
// the callee, and release when the call returns. Callees clone the handle
// to keep the object longer.
package wrap
