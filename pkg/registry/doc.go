// Package registry implements the Runtime Registry: the authoritative
// in-memory map of managed runtime containers, guarded by a mutex and
// mirrored to the Store on every mutation.
package registry
