//go:build rp2040

package main

import (
	"machine"
	"time"
)

// hwWatchdog feeds the RP2040 watchdog
type hwWatchdog struct{}

func startWatchdog(timeoutMS uint32) (hwWatchdog, error) {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: timeoutMS}); err != nil {
		return hwWatchdog{}, err
	}
	return hwWatchdog{}, machine.Watchdog.Start()
}

func (hwWatchdog) Update() {
	machine.Watchdog.Update()
}

// rebooter restarts the chip. Neither method returns.
type rebooter struct{}

// Reset uses a watchdog reset instead of ARM SYSRESETREQ
// This is more reliable on RP2040 and handles USB re-enumeration better
func (rebooter) Reset() {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err == nil {
		machine.Watchdog.Start()
	}
	// Wait for reset (should happen in ~1ms)
	for {
		time.Sleep(1 * time.Millisecond)
	}
}

// ResetToBootloader reboots into the ROM USB mass-storage bootloader
func (rebooter) ResetToBootloader() {
	machine.EnterBootloader()
	for {
		time.Sleep(1 * time.Millisecond)
	}
}
