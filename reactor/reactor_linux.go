//go:build linux

// Linux epoll(7)-based reactor implementation. The opaque-pointer trick
// stashes the caller's userData in the kernel event's data union so a
// wake-up resolves directly to it, writing through &event.Fd rather
// than &event.Pad: Fd and Pad together are the 8-byte epoll_data_t
// union on amd64, so writing only from Pad's offset clobbers 4 bytes
// past the struct. Starting the write at Fd reinterprets the whole
// union as the uintptr we stored, so readiness delivers the FdContext
// pointer directly and the kernel never needs Fd back.
package reactor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type linuxReactor struct {
	epfd int
}

func newReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &linuxReactor{epfd: epfd}, nil
}

func epollEvents(events EventType) uint32 {
	var e uint32 = unix.EPOLLET
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func packEvent(events EventType, userData uintptr) unix.EpollEvent {
	var ev unix.EpollEvent
	ev.Events = epollEvents(events)
	*(*uintptr)(unsafe.Pointer(&ev.Fd)) = userData
	return ev
}

func (r *linuxReactor) Add(fd int, events EventType, userData uintptr) error {
	ev := packEvent(events, userData)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

func (r *linuxReactor) Modify(fd int, events EventType, userData uintptr) error {
	ev := packEvent(events, userData)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

func (r *linuxReactor) Delete(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

func (r *linuxReactor) Wait(out []ReadyEvent, timeoutMs int) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		var et EventType
		if raw[i].Events&unix.EPOLLIN != 0 {
			et |= EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			et |= EventWrite
		}
		out[i] = ReadyEvent{
			UserData: *(*uintptr)(unsafe.Pointer(&raw[i].Fd)),
			Events:   et,
			HangUp:   raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return n, nil
}

func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}

// NewTicklePipe creates the unidirectional wake-up pipe the IOManager
// uses to break a worker out of Wait. Both ends are non-blocking;
// registering the read end with the reactor for edge-triggered read
// readiness is the caller's responsibility.
func NewTicklePipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return 0, 0, fmt.Errorf("reactor: pipe2: %w", err)
	}
	return fds[0], fds[1], nil
}

// DrainPipe reads fd until EAGAIN.
func DrainPipe(fd int) error {
	var buf [64]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err == nil {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		return fmt.Errorf("reactor: drain pipe fd=%d: %w", fd, err)
	}
}

// CloseFd closes a raw fd such as a tickle pipe endpoint.
func CloseFd(fd int) error {
	return unix.Close(fd)
}

// Tickle writes a single byte to w.
func Tickle(w int) error {
	_, err := unix.Write(w, []byte{0})
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("reactor: tickle write fd=%d: %w", w, err)
	}
	return nil
}
