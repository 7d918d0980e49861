//go:build rp2040

package main

import (
	"machine"

	"pwmworker/protocol"
)

// I2C target wiring
var (
	i2cBus = machine.I2C0
	i2cSDA = machine.GPIO4
	i2cSCL = machine.GPIO5
)

const i2cAddress = protocol.DefaultAddress

// channelPins maps abstract channel n to its GPIO. GP4/GP5 carry I2C, GP23-25
// are board functions on the Pico. GP16-19, GP22 and GP26-28 share a slice
// channel with a lower pin and run on PIO lanes.
var channelPins = [protocol.NumChannels]uint8{
	0, 1, 2, 3,
	6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	16, 17, 18, 19, 20, 21, 22,
	26, 27, 28,
}

// statusLED blinks while the firmware runs
var statusLED = machine.LED

// watchdogTimeoutMS bounds a stalled main loop
const watchdogTimeoutMS = 500
