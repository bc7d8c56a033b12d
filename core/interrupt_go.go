//go:build !tinygo

package core

import (
	"runtime"
	"sync"
)

// State is a placeholder for interrupt state on regular Go
type State uintptr

// Hosted builds have no interrupt controller. Bus backends complete transfers
// from their own goroutines, so a process-wide lock stands in for the
// interrupt disable. Critical sections must not nest.
var irqLock sync.Mutex

// disableInterrupts enters the critical section
func disableInterrupts() State {
	irqLock.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	irqLock.Unlock()
}

// inInterrupt reports whether the caller runs in interrupt context.
// Always false on regular Go.
func inInterrupt() bool {
	return false
}

// completionToken identifies the calling goroutine by the ID in its stack
// header. IDs start at 1, so 0 never names a caller.
func completionToken() uint64 {
	const prefix = "goroutine "
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	if n <= len(prefix) {
		return 0
	}
	var id uint64
	for _, c := range buf[len(prefix):n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
