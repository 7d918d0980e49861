//go:build !tinygo

package core

import "sync/atomic"

var systemTicks atomic.Uint64

// getSystemTicks returns the current system time (regular Go implementation)
func getSystemTicks() uint64 {
	return systemTicks.Load()
}

// setSystemTicks sets the system time (regular Go implementation)
func setSystemTicks(us uint64) {
	systemTicks.Store(us)
}
