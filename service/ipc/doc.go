// Package ipc provides the kernel objects processes communicate through:
// pipes, message queues and shared memory segments.
//
// Every operation is non-blocking. When it cannot make progress it records
// the caller's waker and returns executor.ErrWouldBlock; the waker fires
// once the condition may have changed, at which point the caller retries.
// Finalize is called by the object table when the last handle goes away.
package ipc
