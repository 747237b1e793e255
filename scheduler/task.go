package scheduler

import (
	"github.com/coropool/ncoro/coroutine"
	"github.com/coropool/ncoro/internal/procid"
)

// ScheduleTask is a tagged union: exactly one of Cor or Cb is populated
// for a live task, optionally pinned to a specific worker thread.
type ScheduleTask struct {
	Cor    *coroutine.Coroutine
	Cb     func()
	Thread procid.ID
}

func (t ScheduleTask) empty() bool {
	return t.Cor == nil && t.Cb == nil
}

// TaskFor wraps a READY coroutine as a task runnable on any worker.
func TaskFor(c *coroutine.Coroutine) ScheduleTask {
	return ScheduleTask{Cor: c, Thread: procid.Any}
}

// TaskFunc wraps a plain callable as a task runnable on any worker; the
// dispatcher converts it to a coroutine lazily.
func TaskFunc(cb func()) ScheduleTask {
	return ScheduleTask{Cb: cb, Thread: procid.Any}
}

// On pins t to run on the given worker thread.
func (t ScheduleTask) On(thread procid.ID) ScheduleTask {
	t.Thread = thread
	return t
}
