package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/coropool/ncoro/control"
	"github.com/coropool/ncoro/coroutine"
	"github.com/coropool/ncoro/reactor"
)

const initialFdTableSize = 32

// eventContext is one half of an FdContext: the (scheduler, waiter)
// pair for one event direction.
type eventContext struct {
	scheduler *Scheduler
	cor       *coroutine.Coroutine
	cb        func()
}

func (ec *eventContext) empty() bool {
	return ec.scheduler == nil && ec.cor == nil && ec.cb == nil
}

// reset releases the EventContext's hold on a stored waiter coroutine, if
// any, and clears the record. The caller must hold the owning fdContext's
// mutex.
func (ec *eventContext) reset() {
	if ec.cor != nil {
		ec.cor.Release()
	}
	ec.scheduler = nil
	ec.cor = nil
	ec.cb = nil
}

// trigger schedules the waiter recorded in ec, then resets it. The
// caller must hold the owning fdContext's mutex.
func (ec *eventContext) trigger() {
	sched := ec.scheduler
	cb := ec.cb
	cor := ec.cor
	ec.reset()
	if cb != nil {
		sched.Schedule(TaskFunc(cb))
		return
	}
	sched.Schedule(TaskFor(cor))
}

// fdContext is one record per file descriptor observed by the reactor.
type fdContext struct {
	mu     sync.Mutex
	fd     int
	events reactor.EventType
	read   eventContext
	write  eventContext
}

func (fc *fdContext) contextFor(event reactor.EventType) *eventContext {
	switch event {
	case reactor.EventRead:
		return &fc.read
	case reactor.EventWrite:
		return &fc.write
	default:
		panic(fmt.Sprintf("scheduler: invalid event %v", event))
	}
}

// IOManager is a reactor-augmented Scheduler: its idle policy blocks a
// worker in the reactor's readiness wait instead of yielding in a loop,
// turning fd readiness into scheduled wake-ups.
type IOManager struct {
	*Scheduler

	reac      reactor.Reactor
	tickleR   int
	tickleW   int
	tickleCtx *fdContext

	fdMu sync.RWMutex
	fds  []*fdContext

	pendingEventCount int32

	closed int32
}

// NewIOManager constructs an IOManager: creates the reactor, the
// tickle pipe (registered for edge-triggered read readiness), and the
// initial FdContext table, then starts the worker pool.
func NewIOManager(workerCount int, useCaller bool, name string) (*IOManager, error) {
	rec, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("scheduler: NewIOManager: %w", err)
	}

	rd, wr, err := reactor.NewTicklePipe()
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("scheduler: NewIOManager: %w", err)
	}

	m := &IOManager{
		Scheduler: New(workerCount, useCaller, name),
		reac:      rec,
		tickleR:   rd,
		tickleW:   wr,
		fds:       make([]*fdContext, initialFdTableSize),
		tickleCtx: &fdContext{fd: rd},
	}
	m.log = control.IO
	for i := range m.fds {
		m.fds[i] = &fdContext{fd: i}
	}
	m.setPolicy(ioPolicy{m})

	if err := rec.Add(rd, reactor.EventRead, uintptr(unsafe.Pointer(m.tickleCtx))); err != nil {
		rec.Close()
		return nil, fmt.Errorf("scheduler: NewIOManager: register tickle pipe: %w", err)
	}

	m.Start()
	return m, nil
}

func (m *IOManager) contextFor(fd int) *fdContext {
	m.fdMu.RLock()
	if fd < len(m.fds) {
		fc := m.fds[fd]
		m.fdMu.RUnlock()
		return fc
	}
	m.fdMu.RUnlock()

	m.fdMu.Lock()
	defer m.fdMu.Unlock()
	if fd >= len(m.fds) {
		newSize := int(float64(fd) * 1.5)
		if newSize <= fd {
			newSize = fd + 1
		}
		grown := make([]*fdContext, newSize)
		copy(grown, m.fds)
		for i := len(m.fds); i < newSize; i++ {
			grown[i] = &fdContext{fd: i}
		}
		m.fds = grown
	}
	return m.fds[fd]
}

// AddEvent associates event on fd with cb, or with the currently
// running coroutine if cb is nil. Returns an
// error if the event is already registered or the kernel registration
// fails; on error the observable state is left unchanged.
func (m *IOManager) AddEvent(fd int, event reactor.EventType, cb func()) error {
	fc := m.contextFor(fd)

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.events&event != 0 {
		return fmt.Errorf("scheduler: fd %d event %v already registered", fd, event)
	}

	var cur *coroutine.Coroutine
	if cb == nil {
		cur = coroutine.GetThis()
		if cur.State() != coroutine.RUNNING {
			return fmt.Errorf("scheduler: AddEvent fd=%d: no callable and caller is not RUNNING", fd)
		}
	}

	newEvents := fc.events | event
	udata := uintptr(unsafe.Pointer(fc))

	var err error
	if fc.events == 0 {
		err = m.reac.Add(fd, newEvents, udata)
	} else {
		err = m.reac.Modify(fd, newEvents, udata)
	}
	if err != nil {
		return fmt.Errorf("scheduler: AddEvent fd=%d: %w", fd, err)
	}

	atomic.AddInt32(&m.pendingEventCount, 1)
	m.publishPending()
	fc.events = newEvents

	ec := fc.contextFor(event)
	ec.scheduler = m.Scheduler
	ec.cb = cb
	if cur != nil {
		cur.Retain()
		ec.cor = cur
	}
	return nil
}

// DelEvent unregisters event on fd without waking its waiter. Reports whether anything was actually cleared.
func (m *IOManager) DelEvent(fd int, event reactor.EventType) bool {
	fc := m.contextFor(fd)

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.events&event == 0 {
		return false
	}

	remaining := fc.events &^ event
	var err error
	if remaining != 0 {
		err = m.reac.Modify(fd, remaining, uintptr(unsafe.Pointer(fc)))
	} else {
		err = m.reac.Delete(fd)
	}
	if err != nil {
		m.log.Printf("DelEvent fd=%d: %v", fd, err)
		return false
	}

	fc.events = remaining
	atomic.AddInt32(&m.pendingEventCount, -1)
	m.publishPending()
	fc.contextFor(event).reset()
	return true
}

// CancelEvent unregisters event on fd like DelEvent, but first
// schedules the stored waiter so it observes a wake-up instead of
// silent loss.
func (m *IOManager) CancelEvent(fd int, event reactor.EventType) bool {
	fc := m.contextFor(fd)

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.events&event == 0 {
		return false
	}

	remaining := fc.events &^ event
	var err error
	if remaining != 0 {
		err = m.reac.Modify(fd, remaining, uintptr(unsafe.Pointer(fc)))
	} else {
		err = m.reac.Delete(fd)
	}
	if err != nil {
		m.log.Printf("CancelEvent fd=%d: %v", fd, err)
		return false
	}

	fc.events = remaining
	atomic.AddInt32(&m.pendingEventCount, -1)
	m.publishPending()
	ec := fc.contextFor(event)
	if !ec.empty() {
		ec.trigger()
	}
	return true
}

// CancelAll cancels every armed event on fd.
func (m *IOManager) CancelAll(fd int) {
	fc := m.contextFor(fd)

	fc.mu.Lock()
	events := fc.events
	fc.mu.Unlock()

	if events&reactor.EventRead != 0 {
		m.CancelEvent(fd, reactor.EventRead)
	}
	if events&reactor.EventWrite != 0 {
		m.CancelEvent(fd, reactor.EventWrite)
	}
}

// PendingEventCount reports the number of (fd, event) pairs currently
// armed.
func (m *IOManager) PendingEventCount() int32 {
	return atomic.LoadInt32(&m.pendingEventCount)
}

func (m *IOManager) publishPending() {
	control.Metrics.Set(m.name+".pending_events", m.PendingEventCount())
}

// triggerEvent schedules the waiter for event on fc and clears the bit
//: registrations are one-shot, the
// waiter must re-arm.
func (m *IOManager) triggerEvent(fc *fdContext, event reactor.EventType) {
	fc.mu.Lock()
	if fc.events&event == 0 {
		fc.mu.Unlock()
		return
	}
	fc.events &^= event
	atomic.AddInt32(&m.pendingEventCount, -1)
	m.publishPending()
	ec := fc.contextFor(event)
	ec.trigger()
	fc.mu.Unlock()
}

// Close releases the reactor handle, both pipe endpoints, and the
// FdContext table. Stop must have completed first.
func (m *IOManager) Close() error {
	if !m.isStopping() || !m.stopping() {
		panic("scheduler: IOManager closed before Stop drained")
	}
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return nil
	}
	err := m.reac.Close()
	if cerr := reactor.CloseFd(m.tickleR); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := reactor.CloseFd(m.tickleW); cerr != nil && err == nil {
		err = cerr
	}
	m.fdMu.Lock()
	m.fds = nil
	m.fdMu.Unlock()
	return err
}

// ioPolicy is the IOManager's dispatchPolicy: idle blocks in the
// reactor instead of yielding in a loop, and tickle pokes the pipe.
type ioPolicy struct{ m *IOManager }

func (p ioPolicy) idle(s *Scheduler) {
	m := p.m
	events := make([]reactor.ReadyEvent, 64)

	for {
		if p.stopping(s) && atomic.LoadInt32(&m.pendingEventCount) == 0 {
			return
		}

		n, err := m.reac.Wait(events, -1)
		if err != nil {
			m.log.Printf("reactor wait: %v", err)
			coroutine.GetThis().Yield()
			continue
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fc := (*fdContext)(unsafe.Pointer(ev.UserData))
			if fc == m.tickleCtx {
				reactor.DrainPipe(m.tickleR)
				continue
			}

			fd := fc.fd
			fc.mu.Lock()
			effective := ev.Events
			if ev.HangUp {
				effective |= reactor.EventRead | reactor.EventWrite
			}
			effective &= fc.events
			fc.mu.Unlock()

			if effective&reactor.EventRead != 0 {
				m.triggerEvent(fc, reactor.EventRead)
			}
			if effective&reactor.EventWrite != 0 {
				m.triggerEvent(fc, reactor.EventWrite)
			}

			fc.mu.Lock()
			remaining := fc.events
			fc.mu.Unlock()
			if remaining != 0 {
				m.reac.Modify(fd, remaining, uintptr(unsafe.Pointer(fc)))
			} else {
				m.reac.Delete(fd)
			}
		}

		coroutine.GetThis().Yield()
	}
}

func (p ioPolicy) tickle(s *Scheduler) {
	if err := reactor.Tickle(p.m.tickleW); err != nil {
		p.m.log.Printf("tickle: %v", err)
	}
}

func (p ioPolicy) stopping(s *Scheduler) bool {
	return s.stopping()
}
