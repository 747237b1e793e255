// Package control holds the runtime's ambient concerns: the configuration
// store that feeds the scheduler its one tunable (default coroutine stack
// size), a runtime metrics registry for scheduler/reactor counters, and a
// small component-tagged logger used by package scheduler (Scheduler and
// IOManager).
package control
