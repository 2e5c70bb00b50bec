// Package proc implements the kernel process table: process records, the
// lifecycle state machine, per-process descriptor tables and the
// parent/child bookkeeping behind wait and reap.
//
// Only the transitions listed in transitions are legal; every other
// transition, including any transition out of Zombie, fails with
// ErrInvalidTransition. A process record survives as a Zombie until its
// parent reaps it. Children of an exiting process are reparented to Init.
package proc
