// Package reactor is the kernel-facing readiness-wait primitive the
// scheduler's IOManager blocks a worker in: edge-triggered
// registration of READ/WRITE interest on many file descriptors, backed
// by epoll on Linux, plus a unidirectional tickle pipe used to break a
// worker out of a readiness wait from another goroutine.
package reactor
