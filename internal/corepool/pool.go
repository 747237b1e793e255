// Package corepool recycles terminated coroutines so a scheduler's
// dispatcher can reuse them via Coroutine.Reset instead of allocating a
// fresh backing goroutine for every callable task.
//
// The free list is backed by github.com/eapache/queue; see DESIGN.md.
// A FIFO ring buffer is the shape this pool uses: Put appends a TERM
// coroutine and Get pops the oldest one first. Entries of a stale stack
// size are not filtered by Get; they are discarded by drainIfStale when
// the configured default changes.
package corepool

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/coropool/ncoro/control"
	"github.com/coropool/ncoro/coroutine"
)

// Pool is a bounded-by-demand FIFO free list of TERM coroutines, all
// sharing the same stack size.
type Pool struct {
	mu        sync.Mutex
	q         *queue.Queue
	stackSize uint32
}

// New creates a pool for coroutines of the given stack size and
// registers it to self-drain when the default stack-size configuration
// changes, so stale-size entries are never handed back out.
func New(stackSize uint32) *Pool {
	if stackSize == 0 {
		stackSize = uint32(control.Default.StackSize())
	}
	p := &Pool{q: queue.New(), stackSize: stackSize}
	control.Default.OnReload(p.drainIfStale)
	return p
}

func (p *Pool) drainIfStale() {
	if uint32(control.Default.StackSize()) == p.stackSize {
		return
	}
	p.mu.Lock()
	p.q = queue.New()
	p.mu.Unlock()
}

// Get removes and returns a pooled TERM coroutine reset to entry, or nil
// if the pool is empty (the caller should fall back to coroutine.New).
func (p *Pool) Get(entry func()) *coroutine.Coroutine {
	p.mu.Lock()
	if p.q.Length() == 0 {
		p.mu.Unlock()
		return nil
	}
	c := p.q.Remove().(*coroutine.Coroutine)
	p.mu.Unlock()

	c.Reset(entry)
	return c
}

// Put returns a TERM coroutine to the pool for later reuse. It panics if
// c is not TERM, matching Coroutine.Reset's own precondition.
func (p *Pool) Put(c *coroutine.Coroutine) {
	if c.State() != coroutine.TERM {
		panic("corepool: returned coroutine is not TERM")
	}
	p.mu.Lock()
	p.q.Add(c)
	p.mu.Unlock()
}

// Len reports the number of coroutines currently idle in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}
