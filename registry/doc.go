// Package registry pins live bridge objects so boundaries that can only
// carry integers can still reference them.
//
// A host garbage collector cannot see pointers the foreign side stashes
// as plain integers, so the pin table holds one GC-visible reference per
// exported object and hands out uint32 handles. Handle 0 is reserved and
// always invalid. Resolving a handle yields the object header; unpinning
// drops the table's reference.
//
// The table also publishes lifecycle events to observers, which feeds the
// inspector and the leak checks in tests.
package registry
