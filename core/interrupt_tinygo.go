//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}

// inInterrupt reports whether the caller runs inside an interrupt handler
func inInterrupt() bool {
	return interrupt.In()
}

// completionToken is constant: the scheduler is cooperative, so whoever runs
// while a callback is active is that callback unless it blocked.
func completionToken() uint64 {
	return 1
}
