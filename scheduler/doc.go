// Package scheduler implements the N:M task-queue dispatcher on top of
// package coroutine: a name, a shared FIFO of
// ScheduleTasks, a worker pool of OS-thread-pinned goroutines each
// running a dispatch loop, and a use-caller mode in which the
// constructing goroutine supplies a "root dispatcher" coroutine that
// only runs inside Stop.
//
// IOManager (iomanager.go) extends Scheduler with an epoll-backed idle
// policy that turns file-descriptor readiness into scheduled wake-ups.
package scheduler
