package coroutine

import (
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's numeric id by parsing the
// header line of runtime.Stack's output ("goroutine 37 [running]: ...").
//
// This is standard-library-only by necessity: goroutine-local storage
// has no portable library form in Go. The closest alternative is a
// go:linkname into the runtime's own getg, an unsupported
// compiler-internal technique rather than a dependency a module can
// require. Parsing runtime.Stack's header is the idiom the wider
// ecosystem reaches for instead; it costs an allocation and a small
// scan per call, acceptable here since it runs once per Resume/Yield
// rendezvous, not per application-level operation.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if len(b) < len(prefix) {
		panic("coroutine: unexpected runtime.Stack output")
	}
	b = b[len(prefix):]

	i := 0
	for i < len(b) && b[i] != ' ' {
		i++
	}
	id, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		panic("coroutine: failed to parse goroutine id: " + err.Error())
	}
	return id
}
