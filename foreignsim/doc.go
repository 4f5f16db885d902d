// Package foreignsim plays the foreign library's part so the bridge can
// be exercised end to end without the real foreign runtime.
//
// Two simulators cooperate. The native Driver fabricates foreign-origin
// objects (requests, auth continuations) with the same container
// machinery the bridge uses, and drives wrapped vtables from goroutines
// the safe side does not control. The wazero-backed GuestSim goes one
// step further: a WebAssembly guest, assembled in process, calls back
// through host functions that resolve uint32 pin handles and dispatch
// through the vtable slots, demonstrating the integer-handle boundary and
// the pin/unpin translation of foreign add-ref/release traffic.
//
// Both simulators honor the boundary's contracts: null slots are treated
// as unsupported, object parameters are borrowed for the duration of a
// call, and completion slots may fire at most once.
package foreignsim
