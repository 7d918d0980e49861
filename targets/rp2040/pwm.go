//go:build rp2040

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"
)

// Slice register block: CSR, DIV, CTR, CC, TOP per slice, 0x14 bytes apart
const (
	pwmBase      = 0x40050000
	pwmSliceSize = 0x14
	pwmDIVOffset = 0x04
)

// pwmPeripheral is an interface for PWM hardware peripherals
// This abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	SetTop(top uint32)
	Set(channel uint8, value uint32)
	Enable(enable bool)
}

// SliceDriver implements core.SliceDriver on the RP2040's 8 PWM slices.
// TinyGo's pwmGroup only sets the divider through a period in nanoseconds,
// so DIV is written directly to keep the exact 8.4 value.
type SliceDriver struct{}

// NewSliceDriver creates the slice driver
func NewSliceDriver() *SliceDriver {
	return &SliceDriver{}
}

func divRegister(slice uint8) *volatile.Register32 {
	addr := uintptr(pwmBase + uint32(slice)*pwmSliceSize + pwmDIVOffset)
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

// ConfigureSlice sets the divider and wrap value and starts the counter
func (d *SliceDriver) ConfigureSlice(slice uint8, div16, top uint32) {
	pwm := getPWMPeripheral(slice)
	pwm.Enable(false)
	// DIV: INT in bits 11:4, FRAC in bits 3:0, which is div16 as-is
	divRegister(slice).Set(div16 & 0xFFF)
	pwm.SetTop(top)
	pwm.Enable(true)
}

// SetCompare sets a channel's compare level. level > TOP holds the output high.
func (d *SliceDriver) SetCompare(slice, channel uint8, level uint32) {
	getPWMPeripheral(slice).Set(channel, level)
}

// EnablePin switches pin between the PWM function and a floating input
func (d *SliceDriver) EnablePin(pin uint8, enable bool) {
	p := machine.Pin(pin)
	if enable {
		p.Configure(machine.PinConfig{Mode: machine.PinPWM})
	} else {
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
}

// getPWMPeripheral returns the PWM peripheral for a given slice number
// RP2040 has 8 PWM slices: PWM0-PWM7
func getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
