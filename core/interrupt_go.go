//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// On regular Go the bus handler runs on its own goroutine, so the
// interrupt-disable critical section becomes a mutex. Sections must not nest.
var interruptMu sync.Mutex

// disableInterrupts enters the critical section
func disableInterrupts() State {
	interruptMu.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	interruptMu.Unlock()
}
