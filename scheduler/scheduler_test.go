package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/coropool/ncoro/coroutine"
	"github.com/coropool/ncoro/internal/procid"
)

// TestTwoTaskFIFOOnOneWorker confirms a single-worker, non-use-caller
// scheduler runs scheduled callables in submission order.
func TestTwoTaskFIFOOnOneWorker(t *testing.T) {
	s := New(1, false, "fifo-test")

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	s.Start()
	s.Schedule(TaskFunc(func() {
		mu.Lock()
		order = append(order, "A")
		mu.Unlock()
	}))
	s.Schedule(TaskFunc(func() {
		mu.Lock()
		order = append(order, "B")
		mu.Unlock()
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks never completed")
	}

	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("order = %v, want [A B]", order)
	}
}

// TestScheduleThenStopDrainsCallable confirms a callable submitted via
// Schedule is eventually invoked exactly once, once Stop drains the
// queue.
func TestScheduleThenStopDrainsCallable(t *testing.T) {
	s := New(2, false, "drain-test")
	s.Start()

	var count int32
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		s.Schedule(TaskFunc(func() {
			mu.Lock()
			count++
			mu.Unlock()
		}))
	}

	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 20 {
		t.Fatalf("count = %d, want 20", count)
	}
}

// TestUseCallerDispatchesOnStop exercises use_caller mode: the
// constructing goroutine only runs dispatch once Stop is invoked.
func TestUseCallerDispatchesOnStop(t *testing.T) {
	s := New(1, true, "caller-test")
	s.Start()

	ran := false
	s.Schedule(TaskFunc(func() { ran = true }))

	if ran {
		t.Fatal("callable ran before Stop was called in use-caller mode")
	}

	s.Stop()

	if !ran {
		t.Fatal("callable never ran after Stop")
	}
}

// TestThreadPinnedTaskRunsOnRequestedWorker confirms a task pinned to a
// specific worker thread runs there rather than on whichever worker is
// free.
func TestThreadPinnedTaskRunsOnRequestedWorker(t *testing.T) {
	s := New(2, false, "pinned-test")

	var mu sync.Mutex
	observed := make(map[procid.ID]bool)
	seen := make(chan procid.ID, 2)

	s.Start()
	// Let both workers park in idle and record their own thread id by
	// scheduling an any-thread probe per worker slot; since we can't
	// directly address "worker 0" before it runs something, we instead
	// pin a follow-up task to whichever thread id the first probe ran on.
	s.Schedule(TaskFunc(func() {
		seen <- procid.Current()
	}))

	var t0 procid.ID
	select {
	case t0 = <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("probe task never ran")
	}

	done := make(chan struct{})
	s.Schedule(TaskFunc(func() {
		mu.Lock()
		observed[procid.Current()] = true
		mu.Unlock()
		close(done)
	}).On(t0))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pinned task never ran")
	}

	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !observed[t0] {
		t.Fatalf("pinned task did not run on thread %d", t0)
	}
}

func TestScheduleRejectsEmptyTask(t *testing.T) {
	s := New(1, true, "reject-test")
	defer func() {
		if recover() == nil {
			t.Fatal("scheduling an empty task did not panic")
		}
	}()
	s.Schedule(ScheduleTask{})
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(1, false, "idempotent-test")
	s.Start()
	s.Stop()
	s.Stop() // must not block or panic
}

// TestScheduledCoroutineRefCountReturnsToZero confirms the queued-task and
// running-slot owning sites each retain and release their hold on a
// scheduled coroutine in balance: once it has run to completion, nothing
// is still holding a reference.
func TestScheduledCoroutineRefCountReturnsToZero(t *testing.T) {
	s := New(1, false, "refcount-test")
	s.Start()

	done := make(chan struct{})
	c := coroutine.New(func() { close(done) }, 0)

	if got := c.RefCount(); got != 0 {
		t.Fatalf("refcount before scheduling = %d, want 0", got)
	}

	s.Schedule(TaskFor(c))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled coroutine never ran")
	}

	s.Stop()

	if got := c.RefCount(); got != 0 {
		t.Fatalf("refcount after run = %d, want 0", got)
	}
}
