//go:build rp2040

package main

import (
	"machine"
)

// Heartbeat half-periods in microseconds
const (
	blinkRunningUS  = 500000
	blinkDisabledUS = 100000
)

// statusBlinker toggles the status LED: slow while outputs are driven, fast
// while they are held high-impedance
type statusBlinker struct {
	pin    machine.Pin
	on     bool
	nextUS uint64
}

func newStatusBlinker(pin machine.Pin) *statusBlinker {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Low()
	return &statusBlinker{pin: pin}
}

func (b *statusBlinker) update(now uint64, outputsEnabled bool) {
	if now < b.nextUS {
		return
	}
	b.on = !b.on
	b.pin.Set(b.on)
	if outputsEnabled {
		b.nextUS = now + blinkRunningUS
	} else {
		b.nextUS = now + blinkDisabledUS
	}
}
