package coroutine

import (
	"sync"
	"sync/atomic"
)

// threadSlot is the Go analogue of a pair of thread-local pointers: the
// coroutine currently running on a logical worker, and that worker's
// main coroutine. It is keyed by the worker goroutine's identity rather
// than by OS thread id — see the package doc comment for why.
type threadSlot struct {
	main    *Coroutine
	current *Coroutine
}

var (
	workerSlotsMu sync.Mutex
	workerSlots   = map[int64]*threadSlot{}

	selfMu sync.RWMutex
	self   = map[int64]*Coroutine{}
)

func workerSlot(gid int64) *threadSlot {
	workerSlotsMu.Lock()
	defer workerSlotsMu.Unlock()
	s, ok := workerSlots[gid]
	if !ok {
		s = &threadSlot{}
		workerSlots[gid] = s
	}
	return s
}

// registerSelf lets a coroutine's own backing goroutine resolve GetThis
// to itself without first knowing which worker resumed it.
func registerSelf(gid int64, c *Coroutine) {
	selfMu.Lock()
	self[gid] = c
	selfMu.Unlock()
}

func unregisterSelf(gid int64) {
	selfMu.Lock()
	delete(self, gid)
	selfMu.Unlock()
}

func selfCoroutine(gid int64) (*Coroutine, bool) {
	selfMu.RLock()
	c, ok := self[gid]
	selfMu.RUnlock()
	return c, ok
}

func newMainCoroutine(gid int64) *Coroutine {
	atomic.AddInt64(&totalCount, 1)
	return &Coroutine{
		id:       nextID(),
		isMain:   true,
		state:    int32(RUNNING),
		ownerGID: gid,
	}
}

// GetThis returns the coroutine currently running on the calling
// goroutine's logical thread of control, synthesizing that thread's main
// coroutine on first use.
func GetThis() *Coroutine {
	gid := goroutineID()
	if c, ok := selfCoroutine(gid); ok {
		return c
	}
	s := workerSlot(gid)
	if s.main == nil {
		s.main = newMainCoroutine(gid)
		s.current = s.main
	}
	if s.current == nil {
		s.current = s.main
	}
	return s.current
}

// Main returns the calling thread's main coroutine, synthesizing it if
// this is the first coroutine-package call made from this goroutine.
func Main() *Coroutine {
	gid := goroutineID()
	if c, ok := selfCoroutine(gid); ok {
		gid = c.ownerGID
	}
	s := workerSlot(gid)
	if s.main == nil {
		s.main = newMainCoroutine(gid)
		s.current = s.main
	}
	return s.main
}
