// Package executor implements the kernel's single-threaded cooperative task
// executor.
//
// A task is an explicit resumable state object: each Poll either finishes
// (PollReady) or returns PollPending after arranging for some other
// component to call Wake on its id once the awaited condition holds. Tasks
// that are not Ready are never polled.
//
// Each tick drains the Critical queue to empty, then Normal, then
// Background. A task woken into a queue that has not been drained yet in the
// current tick is polled in that same tick; otherwise it waits for the next.
package executor
