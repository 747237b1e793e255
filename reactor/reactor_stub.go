//go:build !linux

// Stub for platforms without a reactor backend. Only the Linux epoll
// family is implemented; see DESIGN.md for why an IOCP-style
// implementation was dropped rather than adapted.
package reactor

func newReactor() (Reactor, error) {
	return nil, ErrNotSupported
}

// NewTicklePipe, DrainPipe and Tickle have no portable implementation
// outside the Linux build; see reactor_linux.go.
func NewTicklePipe() (r, w int, err error) { return 0, 0, ErrNotSupported }

func DrainPipe(fd int) error { return ErrNotSupported }

func Tickle(w int) error { return ErrNotSupported }

func CloseFd(fd int) error { return ErrNotSupported }
