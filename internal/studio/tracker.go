package studio

import (
	"sync"

	"github.com/book-expert/voice-studio/internal/core"
)

// scope identifies the state a completion may overwrite. Whole-collection
// operations use the bare operation; operations on one voice or history item
// are scoped to that id, so completions for different targets never
// invalidate each other.
type scope struct {
	op     core.Operation
	target string
}

// tracker numbers calls per scope and counts in-flight calls per operation.
type tracker struct {
	mu       sync.Mutex
	issued   map[scope]uint64
	applied  map[scope]uint64
	inFlight map[core.Operation]int
}

func newTracker() *tracker {
	return &tracker{
		issued:   make(map[scope]uint64),
		applied:  make(map[scope]uint64),
		inFlight: make(map[core.Operation]int),
	}
}

// begin issues the next sequence number for key and raises the loading flag.
func (t *tracker) begin(key scope) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.issued[key]++
	t.inFlight[key.op]++

	return t.issued[key]
}

// end lowers the loading flag. It runs deferred so it survives every error.
func (t *tracker) end(key scope) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlight[key.op] > 0 {
		t.inFlight[key.op]--
	}
}

// accept reports whether a completion numbered seq is newer than the last one
// applied for key, and records it as applied when it is.
func (t *tracker) accept(key scope, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seq <= t.applied[key] {
		return false
	}

	t.applied[key] = seq

	return true
}

func (t *tracker) loading(op core.Operation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.inFlight[op] > 0
}
