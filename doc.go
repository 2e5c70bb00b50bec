// Package axebergos is a cooperative kernel: a poll-based executor, a process
// table with a lifecycle state machine, per-process signals, a timer queue and
// a reference-counted object table, owned by one Kernel value.
//
// Work runs as tasks bound to processes. A bound task only runs while its
// process is Running and is dropped once the process exits:
//
//	k, err := axebergos.New()
//	pid, err := k.Spawn(proc.Init, executor.Normal, axebergos.TaskFunc(func(ctx context.Context, p *axebergos.Proc) executor.Poll {
//		return executor.PollReady
//	}), axebergos.SpawnOptions{Name: "hello"})
//	runner.New(k).Run(ctx)
//
// Syscall-style methods (Sleep, Wait, Read, Write, Kill, ...) return
// ErrWouldBlock when the caller must suspend; the kernel wakes the calling
// task once the condition may have changed.
package axebergos
