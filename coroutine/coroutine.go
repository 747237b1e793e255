// Package coroutine implements the runtime's stackful execution unit:
// explicit suspend/resume over an independently-owned "stack".
//
// Go exposes no ucontext-style context-switch primitive, so the owned
// stack is realized the way the Go ecosystem builds stackful coroutines
// without assembly or cgo: a coroutine is backed by a dedicated
// goroutine, and Resume/Yield are a synchronous, unbuffered-channel
// rendezvous between that goroutine and whichever goroutine is driving
// it. The goroutine IS the stack; it is started on the first Resume and,
// once the entry function returns (or panics) and the coroutine reaches
// TERM, it stays parked waiting for the Resume that follows a Reset. It
// does not exit.
//
// Every coroutine on a given OS thread's dispatch loop shares that
// thread's notion of "current" and "main" coroutine, the Go analogue of
// a pair of thread-local pointers. Because the backing goroutine for a
// resumed coroutine may run on a different OS thread than its resumer,
// this package does not key those slots by OS thread: it keys them by
// the resuming goroutine's identity, and resolves "the currently
// running coroutine" from inside a coroutine's own entry function via a
// second lookup keyed by the backing goroutine's identity. See
// goroutineID below for why that lookup uses the standard library
// alone.
package coroutine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coropool/ncoro/control"
)

// State is one of a coroutine's three lifecycle states.
type State int32

const (
	// READY is the state of a coroutine just created or just yielded.
	READY State = iota
	// RUNNING is the state of a coroutine after resume, before its next yield.
	RUNNING
	// TERM is the terminal state; a coroutine never leaves it.
	TERM
)

func (s State) String() string {
	switch s {
	case READY:
		return "READY"
	case RUNNING:
		return "RUNNING"
	case TERM:
		return "TERM"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	idCounter  uint64 // atomic, monotonically assigned, never reused
	totalCount int64  // atomic, count of coroutines ever created
)

// Total returns the number of coroutines created so far in this process,
// main coroutines included. The count is never decremented.
func Total() uint64 {
	return uint64(atomic.LoadInt64(&totalCount))
}

// Coroutine is a resumable, stackful execution unit. The zero value is
// not usable; construct one with New, or obtain a thread's main
// coroutine with GetThis.
type Coroutine struct {
	id        uint64
	stacksize uint32
	isMain    bool

	state    int32 // atomic State
	refcount int32 // atomic

	mu       sync.Mutex // guards entry/started/ownerGID/panicValue
	entry    func()
	started  bool
	ownerGID int64 // goroutine id of whoever last called Resume; valid while RUNNING

	panicValue any

	resumeCh chan struct{}
	yieldCh  chan struct{}
}

// New allocates a coroutine bound to entry. stackSize of 0 falls back to
// the configured default.
func New(entry func(), stackSize uint32) *Coroutine {
	if entry == nil {
		panic("coroutine: New requires a non-nil entry function")
	}
	if stackSize == 0 {
		stackSize = uint32(control.Default.StackSize())
	}
	atomic.AddInt64(&totalCount, 1)
	return &Coroutine{
		id:        nextID(),
		stacksize: stackSize,
		entry:     entry,
		state:     int32(READY),
		resumeCh:  make(chan struct{}),
		yieldCh:   make(chan struct{}),
	}
}

func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1) - 1
}

// ID returns the coroutine's process-unique, never-reused identifier.
func (c *Coroutine) ID() uint64 { return c.id }

// StackSize returns the stack size this coroutine was created with (0 for
// a main coroutine, which owns no stack).
func (c *Coroutine) StackSize() uint32 { return c.stacksize }

// IsMain reports whether c is a thread's main coroutine.
func (c *Coroutine) IsMain() bool { return c.isMain }

// State returns the coroutine's current state.
func (c *Coroutine) State() State { return State(atomic.LoadInt32(&c.state)) }

// Retain increments c's reference count. The runtime calls this whenever
// a new owner (the ready queue, a running-slot, an EventContext) takes a
// reference to a queued or armed coroutine handle.
func (c *Coroutine) Retain() { atomic.AddInt32(&c.refcount, 1) }

// Release decrements c's reference count. It does not free anything —
// Go's GC owns c's memory — but it lets tests assert that every owner
// released its reference once the runtime has drained.
func (c *Coroutine) Release() {
	if atomic.AddInt32(&c.refcount, -1) < 0 {
		panic(fmt.Sprintf("coroutine: over-released coroutine %d", c.id))
	}
}

// RefCount returns the current reference count, for tests.
func (c *Coroutine) RefCount() int32 { return atomic.LoadInt32(&c.refcount) }

// Reset reinitializes a TERM coroutine around a new entry, reusing its
// backing goroutine slot without reallocating anything. Precondition: c owns
// a stack (is not a main coroutine) and is TERM.
func (c *Coroutine) Reset(entry func()) {
	if entry == nil {
		panic("coroutine: Reset requires a non-nil entry function")
	}
	if c.isMain {
		panic("coroutine: cannot reset a main coroutine")
	}
	if State(atomic.LoadInt32(&c.state)) != TERM {
		panic(fmt.Sprintf("coroutine: reset of coroutine %d in state %s, want TERM", c.id, c.State()))
	}
	c.mu.Lock()
	c.entry = entry
	c.panicValue = nil
	c.mu.Unlock()
	atomic.StoreInt32(&c.state, int32(READY))
}

// Resume switches control from the calling goroutine to c. The caller is
// suspended at this call until c yields or terminates.
// Resume is called by a dispatcher: a worker's main coroutine, or the
// root dispatcher coroutine whose entry runs the dispatch loop in
// use-caller mode.
func (c *Coroutine) Resume() {
	if c.isMain {
		panic("coroutine: cannot resume a main coroutine")
	}
	if State(atomic.LoadInt32(&c.state)) != READY {
		panic(fmt.Sprintf("coroutine: resume of coroutine %d in state %s, want READY", c.id, c.State()))
	}

	gid := goroutineID()
	s := workerSlot(gid)
	if s.main == nil {
		s.main = newMainCoroutine(gid)
	}

	c.mu.Lock()
	c.ownerGID = gid
	start := !c.started
	c.started = true
	c.mu.Unlock()

	atomic.StoreInt32(&c.state, int32(RUNNING))
	s.current = c

	if start {
		go c.launch()
	}

	c.resumeCh <- struct{}{}
	<-c.yieldCh

	s.current = s.main

	c.mu.Lock()
	pv := c.panicValue
	c.mu.Unlock()
	if pv != nil {
		panic(pv)
	}
}

// Yield suspends the calling coroutine and switches back to the thread's
// main coroutine. Precondition: the caller is the
// currently running coroutine and its state is RUNNING or TERM. A TERM
// coroutine's Yield hands control back without waiting to be resumed;
// the trampoline itself signals its terminal hand-off directly rather
// than through Yield.
func (c *Coroutine) Yield() {
	st := State(atomic.LoadInt32(&c.state))
	if st != RUNNING && st != TERM {
		panic(fmt.Sprintf("coroutine: yield of coroutine %d in state %s, want RUNNING or TERM", c.id, st))
	}

	c.mu.Lock()
	gid := c.ownerGID
	c.mu.Unlock()
	s := workerSlot(gid)
	if s.current != c {
		panic("coroutine: yield called outside the currently running coroutine")
	}

	if st != TERM {
		atomic.StoreInt32(&c.state, int32(READY))
	}

	c.yieldCh <- struct{}{}
	if st == TERM {
		return // terminal yield: nobody will resume this coroutine again
	}
	<-c.resumeCh
}

// launch is the trampoline: it backs a fresh coroutine
// with one dedicated goroutine for the coroutine's entire lifetime,
// looping across Reset calls so a pooled coroutine reuses the same
// backing goroutine on every reuse instead of spawning a fresh one. A
// panic inside entry is recovered so the coroutine still reaches TERM
// cleanly; it is re-raised from the Resume call that was driving the
// coroutine.
func (c *Coroutine) launch() {
	gid := goroutineID()
	registerSelf(gid, c)
	defer unregisterSelf(gid)

	for {
		<-c.resumeCh

		func() {
			defer func() {
				if r := recover(); r != nil {
					c.mu.Lock()
					c.entry = nil
					c.panicValue = r
					c.mu.Unlock()
					atomic.StoreInt32(&c.state, int32(TERM))
				}
			}()

			c.mu.Lock()
			entry := c.entry
			c.mu.Unlock()

			entry()

			c.mu.Lock()
			c.entry = nil
			c.mu.Unlock()
			atomic.StoreInt32(&c.state, int32(TERM))
		}()

		c.yieldCh <- struct{}{}
	}
}
