//go:build linux

package procid

import "golang.org/x/sys/unix"

// current returns the kernel thread id (gettid(2)), grounded on the same
// golang.org/x/sys/unix dependency the reactor package uses for epoll.
func current() ID {
	return ID(unix.Gettid())
}
