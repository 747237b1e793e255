//go:build linux

package scheduler

import (
	"testing"
	"time"

	"github.com/coropool/ncoro/reactor"
	"golang.org/x/sys/unix"
)

// TestPipeReadWakeUp registers a read callback on a pipe and confirms
// it fires once the other end is written to.
func TestPipeReadWakeUp(t *testing.T) {
	m, err := NewIOManager(1, false, "pipe-test")
	if err != nil {
		t.Fatalf("NewIOManager: %v", err)
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r, w := fds[0], fds[1]

	recorded := make(chan string, 1)
	err = m.AddEvent(r, reactor.EventRead, func() {
		var buf [16]byte
		n, _ := unix.Read(r, buf[:])
		recorded <- string(buf[:n])
	})
	if err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-recorded:
		if got != "x" {
			t.Fatalf("recorded = %q, want %q", got, "x")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read callback never fired")
	}

	m.Stop()
	if pc := m.PendingEventCount(); pc != 0 {
		t.Fatalf("PendingEventCount = %d, want 0", pc)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	unix.Close(w)
}

// TestDoubleArmIsAnError confirms arming the same (fd, event) pair
// twice is rejected without disturbing the fd's existing registration.
func TestDoubleArmIsAnError(t *testing.T) {
	m, err := NewIOManager(1, false, "double-arm-test")
	if err != nil {
		t.Fatalf("NewIOManager: %v", err)
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r, w := fds[0], fds[1]
	defer unix.Close(w)

	if err := m.AddEvent(r, reactor.EventRead, func() {}); err != nil {
		t.Fatalf("first AddEvent: %v", err)
	}
	if err := m.AddEvent(r, reactor.EventRead, func() {}); err == nil {
		t.Fatal("second AddEvent on the same (fd, event) did not error")
	}

	// Kernel state must be unchanged: a successful add of the other
	// direction still succeeds.
	if err := m.AddEvent(r, reactor.EventWrite, func() {}); err != nil {
		t.Fatalf("AddEvent WRITE after rejected double-arm: %v", err)
	}

	// Unarm both before stopping: idle only terminates once no I/O
	// registrations remain pending.
	m.CancelAll(r)
	m.Stop()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestCancelEventWakesOriginalWaiter confirms CancelEvent schedules the
// callback that was actually armed, not whatever happens to occupy the
// fd's eventContext by the time the cancellation's wake-up runs.
func TestCancelEventWakesOriginalWaiter(t *testing.T) {
	m, err := NewIOManager(1, false, "cancel-test")
	if err != nil {
		t.Fatalf("NewIOManager: %v", err)
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r, w := fds[0], fds[1]
	defer unix.Close(w)

	fired := make(chan string, 2)
	if err := m.AddEvent(r, reactor.EventRead, func() { fired <- "first" }); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	if !m.CancelEvent(r, reactor.EventRead) {
		t.Fatal("CancelEvent reported nothing was armed")
	}
	if err := m.AddEvent(r, reactor.EventRead, func() { fired <- "second" }); err != nil {
		t.Fatalf("re-arm AddEvent: %v", err)
	}

	select {
	case got := <-fired:
		if got != "first" {
			t.Fatalf("fired = %q, want %q (the cancelled waiter, woken exactly once)", got, "first")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled callback never fired")
	}

	select {
	case got := <-fired:
		t.Fatalf("unexpected second fire: %q (re-armed waiter should still be pending)", got)
	case <-time.After(100 * time.Millisecond):
	}

	m.CancelAll(r)
	m.Stop()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestTickleWakesIdleWorker schedules a callable while the sole worker
// is parked in its reactor wait and confirms it runs within a bounded
// time.
func TestTickleWakesIdleWorker(t *testing.T) {
	m, err := NewIOManager(1, false, "tickle-test")
	if err != nil {
		t.Fatalf("NewIOManager: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // let the worker reach idle

	done := make(chan struct{})
	m.Schedule(TaskFunc(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled task never ran; tickle did not wake idle worker")
	}

	m.Stop()
	m.Close()
}
