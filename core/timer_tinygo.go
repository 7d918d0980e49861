//go:build tinygo

package core

import "runtime/interrupt"

// The RP2040 has no 64-bit atomics; guard the clock with a short critical
// section instead.
var systemTicksValue uint64

// getSystemTicks returns the current system time
func getSystemTicks() uint64 {
	state := interrupt.Disable()
	v := systemTicksValue
	interrupt.Restore(state)
	return v
}

// setSystemTicks sets the system time
func setSystemTicks(us uint64) {
	state := interrupt.Disable()
	systemTicksValue = us
	interrupt.Restore(state)
}
