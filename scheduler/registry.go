package scheduler

import (
	"sync"

	"github.com/coropool/ncoro/internal/procid"
)

var (
	workerMu sync.RWMutex
	workers  = map[procid.ID]*Scheduler{}
)

func setWorkerScheduler(id procid.ID, s *Scheduler) {
	workerMu.Lock()
	workers[id] = s
	workerMu.Unlock()
}

func clearWorkerScheduler(id procid.ID) {
	workerMu.Lock()
	delete(workers, id)
	workerMu.Unlock()
}

// GetThis returns the Scheduler currently dispatching on the calling OS
// thread, or nil if this thread is not one of a scheduler's workers.
func GetThis() *Scheduler {
	workerMu.RLock()
	defer workerMu.RUnlock()
	return workers[procid.Current()]
}
