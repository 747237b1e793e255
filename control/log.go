// control/log.go
//
// A minimal component-tagged wrapper over the standard library logger
// (it has no log levels): components
// call log.Printf-style methods directly at call sites rather than
// threading a structured logging library through every constructor.

package control

import (
	"log"
	"os"
)

// Logger prefixes every line with a component tag, e.g. "[sched]" or "[io]".
type Logger struct {
	*log.Logger
}

// NewLogger returns a Logger that writes to stderr tagged with name.
func NewLogger(name string) *Logger {
	return &Logger{log.New(os.Stderr, "["+name+"] ", log.LstdFlags)}
}

// Sched is the default logger used by package scheduler.
var Sched = NewLogger("sched")

// IO is the default logger used by the IOManager.
var IO = NewLogger("io")
