// Package timer implements the kernel timer queue.
//
// Timers are ordered by fire time and, for equal fire times, by insertion
// sequence so that simultaneous timers fire in FIFO order. Cancellation is
// lazy: a cancelled timer stays in the heap and is discarded when it is
// popped. Interval timers keep a fixed phase: after firing they are moved to
// the nearest future boundary of their cadence, and at most one fire is
// reported per Advance call no matter how many periods elapsed.
package timer
