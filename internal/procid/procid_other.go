//go:build !linux

package procid

import "sync/atomic"

var counter int64

// current on platforms without a stable kernel thread id (gettid is a
// Linux-only syscall) hands out a process-unique pseudo-id. This is safe
// for this runtime's usage pattern — a worker calls Current exactly once
// at startup, right after runtime.LockOSThread, and caches the result for
// its lifetime — but it is not a real OS thread identifier recognizable
// by external tools.
func current() ID {
	return ID(atomic.AddInt64(&counter, 1))
}
