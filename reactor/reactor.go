package reactor

import "errors"

// EventType is a bitmask of readiness interest, mirroring FdContext's
// events mask.
type EventType uint8

const (
	// EventRead is read readiness.
	EventRead EventType = 1 << iota
	// EventWrite is write readiness.
	EventWrite
)

// ErrNotSupported is returned by New on platforms without a reactor
// implementation.
var ErrNotSupported = errors.New("reactor: this platform is not supported")

// ReadyEvent is one readiness notification returned by Wait.
type ReadyEvent struct {
	// UserData is the opaque pointer supplied at Add/Modify time — the
	// IOManager stores a *scheduler.fdContext here so a wake-up resolves
	// directly to its FdContext without a table lookup.
	UserData uintptr
	// Events is the readiness bitmask actually reported.
	Events EventType
	// HangUp reports EPOLLERR/EPOLLHUP: the caller should treat this as
	// both READ and WRITE ready, intersected with what's registered.
	HangUp bool
}

// Reactor is the kernel-facing multiplexing primitive the IOManager
// blocks one worker in. All registration calls use edge-triggered
// semantics: a given readiness condition is reported once per
// transition, and the caller must re-arm by calling Add or Modify again.
type Reactor interface {
	// Add registers fd for events, which must not already be registered.
	Add(fd int, events EventType, userData uintptr) error
	// Modify rewrites fd's registered event set and/or userData.
	Modify(fd int, events EventType, userData uintptr) error
	// Delete removes fd from the reactor entirely.
	Delete(fd int) error
	// Wait blocks until at least one event is ready or timeoutMs
	// elapses (negative means block indefinitely), writing ready events
	// into out and returning how many were written.
	Wait(out []ReadyEvent, timeoutMs int) (int, error)
	// Close releases the reactor's kernel resources.
	Close() error
}

// New constructs the platform-specific Reactor.
func New() (Reactor, error) {
	return newReactor()
}
