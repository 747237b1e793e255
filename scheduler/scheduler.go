package scheduler

import (
	"container/list"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/coropool/ncoro/control"
	"github.com/coropool/ncoro/coroutine"
	"github.com/coropool/ncoro/internal/corepool"
	"github.com/coropool/ncoro/internal/procid"
)

// dispatchPolicy is the strategy Scheduler's dispatch loop consults for
// its idle and wake-up behaviour.
// The base Scheduler uses basePolicy; IOManager supplies ioPolicy.
type dispatchPolicy interface {
	idle(s *Scheduler)
	tickle(s *Scheduler)
	stopping(s *Scheduler) bool
}

// Scheduler is the work-stealing-free, task-queue coroutine dispatcher
// that multiplexes coroutines and callables across a pool of worker
// threads.
type Scheduler struct {
	name string
	log  *control.Logger

	mu    sync.Mutex
	tasks *list.List

	workerCount int
	useCaller   bool

	activeCount int32
	idleCount   int32

	rootThread procid.ID
	rootCor    *coroutine.Coroutine

	started  bool
	stopFlag int32
	wg       sync.WaitGroup

	policy dispatchPolicy
	pool   *corepool.Pool
}

// New constructs a Scheduler with workerCount worker threads. When
// useCaller is true the constructing goroutine is pinned to its OS
// thread and counted as one of the workers, dispatching only when Stop
// is called; when false, workerCount fresh worker goroutines are
// spawned by Start and the constructing goroutine never dispatches.
func New(workerCount int, useCaller bool, name string) *Scheduler {
	if workerCount < 1 {
		panic("scheduler: workerCount must be >= 1")
	}
	s := &Scheduler{
		name:        name,
		log:         control.Sched,
		tasks:       list.New(),
		workerCount: workerCount,
		useCaller:   useCaller,
		rootThread:  procid.Any,
		pool:        corepool.New(0),
	}
	s.policy = basePolicy{}
	if useCaller {
		runtime.LockOSThread()
		s.rootThread = procid.Current()
	}
	return s
}

// Name returns the scheduler's configured name.
func (s *Scheduler) Name() string { return s.name }

func (s *Scheduler) setPolicy(p dispatchPolicy) { s.policy = p }

// Schedule enqueues task, tickling the pool if the queue was empty.
// Thread-safe and non-blocking.
func (s *Scheduler) Schedule(task ScheduleTask) {
	if task.empty() {
		panic("scheduler: task has neither coroutine nor callable")
	}
	if task.Cor != nil && task.Cb != nil {
		panic("scheduler: task has both coroutine and callable")
	}
	if task.Cor != nil && task.Cor.State() != coroutine.READY {
		panic("scheduler: scheduled coroutine is not READY")
	}
	if task.Thread == 0 {
		task.Thread = procid.Any
	}
	if task.Cor != nil {
		task.Cor.Retain()
	}

	s.mu.Lock()
	needTickle := s.tasks.Len() == 0
	s.tasks.PushBack(task)
	s.mu.Unlock()

	if needTickle {
		s.policy.tickle(s)
	}
}

// Start populates the worker pool. May only be called once, and never
// on a scheduler that has begun stopping.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		panic("scheduler: start called twice")
	}
	if atomic.LoadInt32(&s.stopFlag) != 0 {
		s.mu.Unlock()
		panic("scheduler: start called on a stopping scheduler")
	}
	s.started = true
	s.mu.Unlock()

	spawn := s.workerCount
	if s.useCaller {
		spawn--

		var rootCor *coroutine.Coroutine
		rootThread := s.rootThread
		rootCor = coroutine.New(func() { s.run(rootThread, rootCor) }, 0)
		s.rootCor = rootCor
	}

	for i := 0; i < spawn; i++ {
		s.wg.Add(1)
		go s.workerMain()
	}
}

func (s *Scheduler) workerMain() {
	defer s.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	id := procid.Current()
	dispatcher := coroutine.GetThis()
	s.run(id, dispatcher)
}

// Stop signals the pool to drain: it must be called from the
// constructing goroutine in use-caller mode, and never from inside a
// worker otherwise.
func (s *Scheduler) Stop() {
	if s.isStopping() {
		return
	}
	atomic.StoreInt32(&s.stopFlag, 1)

	for i := 0; i < s.workerCount; i++ {
		s.policy.tickle(s)
	}

	if s.rootCor != nil {
		s.rootCor.Resume()
	}

	s.wg.Wait()
}

func (s *Scheduler) isStopping() bool {
	return atomic.LoadInt32(&s.stopFlag) != 0
}

// stopping is the base predicate: the stopping flag is set, the queue
// is drained, and no worker is mid-task.
func (s *Scheduler) stopping() bool {
	if !s.isStopping() {
		return false
	}
	s.mu.Lock()
	empty := s.tasks.Len() == 0
	s.mu.Unlock()
	return empty && atomic.LoadInt32(&s.activeCount) == 0
}

// publishCounts pushes the active/idle worker gauges to the ambient
// metrics registry.
func (s *Scheduler) publishCounts() {
	control.Metrics.Set(s.name+".active", s.ActiveCount())
	control.Metrics.Set(s.name+".idle", s.IdleCount())
}

// ActiveCount reports the number of workers currently resuming a task.
func (s *Scheduler) ActiveCount() int32 { return atomic.LoadInt32(&s.activeCount) }

// IdleCount reports the number of workers currently parked in idle.
func (s *Scheduler) IdleCount() int32 { return atomic.LoadInt32(&s.idleCount) }

// popTask removes and returns the first task in the queue whose Thread
// is either procid.Any or myThread,
// reporting whether some other worker should be tickled because a
// thread-pinned task was skipped or tasks remain after removal.
func (s *Scheduler) popTask(myThread procid.ID) (ScheduleTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pickedElem *list.Element
	var picked ScheduleTask
	tickleMe := false

	for e := s.tasks.Front(); e != nil; e = e.Next() {
		t := e.Value.(ScheduleTask)
		if pickedElem != nil {
			continue
		}
		if t.Thread == procid.Any || t.Thread == myThread {
			pickedElem = e
			picked = t
			continue
		}
		tickleMe = true
	}

	if pickedElem == nil {
		return ScheduleTask{}, tickleMe
	}
	s.tasks.Remove(pickedElem)
	if picked.Cor != nil {
		picked.Cor.Release()
	}
	if s.tasks.Len() > 0 {
		tickleMe = true
	}
	return picked, tickleMe
}

// run is the dispatcher loop, executed once per worker (directly on a
// spawned worker goroutine's main coroutine, or inside the root
// dispatcher coroutine in use-caller mode).
func (s *Scheduler) run(myThread procid.ID, dispatcher *coroutine.Coroutine) {
	setWorkerScheduler(myThread, s)
	defer clearWorkerScheduler(myThread)

	idleCor := coroutine.New(func() { s.policy.idle(s) }, 0)

	for {
		task, tickleMe := s.popTask(myThread)
		if tickleMe {
			s.policy.tickle(s)
		}

		switch {
		case task.Cor != nil:
			task.Cor.Retain()
			atomic.AddInt32(&s.activeCount, 1)
			s.publishCounts()
			task.Cor.Resume()
			atomic.AddInt32(&s.activeCount, -1)
			s.publishCounts()
			task.Cor.Release()

		case task.Cb != nil:
			cbCor := s.pool.Get(task.Cb)
			if cbCor == nil {
				cbCor = coroutine.New(task.Cb, 0)
			}
			atomic.AddInt32(&s.activeCount, 1)
			s.publishCounts()
			cbCor.Resume()
			atomic.AddInt32(&s.activeCount, -1)
			s.publishCounts()
			s.pool.Put(cbCor)

		default:
			if idleCor.State() == coroutine.TERM {
				s.log.Printf("%s: worker %d exiting, idle coroutine terminated", s.name, myThread)
				return
			}
			atomic.AddInt32(&s.idleCount, 1)
			s.publishCounts()
			idleCor.Resume()
			atomic.AddInt32(&s.idleCount, -1)
			s.publishCounts()
		}
	}
}

// basePolicy is the default idle/tickle/stopping behaviour: idle
// yields until stopping, tickle is a log-only no-op.
type basePolicy struct{}

func (basePolicy) idle(s *Scheduler) {
	for !s.policy.stopping(s) {
		coroutine.GetThis().Yield()
	}
}

func (basePolicy) tickle(s *Scheduler) {
	s.log.Printf("%s: tickle", s.name)
}

func (basePolicy) stopping(s *Scheduler) bool {
	return s.stopping()
}

// String implements fmt.Stringer for diagnostics.
func (s *Scheduler) String() string {
	return fmt.Sprintf("Scheduler(%s active=%d idle=%d)", s.name, s.ActiveCount(), s.IdleCount())
}
