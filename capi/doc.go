// Package capi models the foreign C-shaped ABI that every bridged object
// honors.
//
// A foreign object's first field is always its function-pointer table, and
// that table always begins with a Base header: a size field used by the
// foreign library for layout checks, followed by the four reference-count
// slots. A nil slot means the operation is unsupported, never that an error
// occurred; callers check for presence and fall back to a safe default.
//
// Strings cross the boundary as UTF-16 code units with an explicit length,
// never as NUL-terminated narrow strings. Booleans cross as 0/1 integers
// and enumerations as small integers.
package capi
