// Package object implements the kernel object table: a registry that hands
// out opaque handles to kernel resources (pipe ends, queues, shared memory,
// open files) and tracks how many live references point at each of them.
//
// The table is oblivious to object kinds. When the last reference to an
// object is released the object is removed and, if it implements Finalizer,
// its teardown runs exactly once. Handles are never reused, so a freed
// handle can never resolve to a different object later.
package object
