//go:build rp2040

// Package pio drives soft-PWM lanes on the RP2040 PIO blocks for pins whose
// hardware slice channel is already taken.
package pio

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

var (
	errNotLoaded   = errors.New("pio: PWM program not loaded")
	errLaneClaimed = errors.New("pio: state machine already claimed")
)

// LaneDriver implements core.LaneDriver on PIO0 and PIO1
type LaneDriver struct {
	units   [2]*rp2pio.PIO
	offsets [2]uint8
	loaded  [2]bool
}

// NewLaneDriver returns a driver for both PIO blocks
func NewLaneDriver() *LaneDriver {
	return &LaneDriver{
		units: [2]*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1},
	}
}

// LoadProgram loads the PWM program into a block's instruction memory
func (d *LaneDriver) LoadProgram(unit uint8) error {
	offset, err := d.units[unit].AddProgram(pwmInstructions, pwmOrigin)
	if err != nil {
		return err
	}
	d.offsets[unit] = offset
	d.loaded[unit] = true
	return nil
}

// StartLane claims a state machine and starts the PWM program on it with
// pin as the side-set output. The pin stays high-impedance until EnablePin.
func (d *LaneDriver) StartLane(unit, lane, pin uint8) error {
	if !d.loaded[unit] {
		return errNotLoaded
	}
	sm := d.units[unit].StateMachine(lane)
	if !sm.TryClaim() {
		return errLaneClaimed
	}

	p := machine.Pin(pin)
	cfg := pwmProgramDefaultConfig(d.offsets[unit])
	cfg.SetSidesetPins(p)
	sm.Init(d.offsets[unit], cfg)
	sm.SetPindirsConsecutive(p, 1, true)
	sm.SetEnabled(true)
	return nil
}

// ConfigureLane sets the lane's clock divider and loads the period into
// ISR. Pending levels are discarded; the caller rewrites the level.
func (d *LaneDriver) ConfigureLane(unit, lane uint8, div256, period uint32) {
	sm := d.units[unit].StateMachine(lane)
	sm.SetEnabled(false)
	sm.SetClkDiv(uint16(div256>>8), uint8(div256))
	sm.ClearFIFOs()
	sm.TxPut(period)
	sm.Exec(rp2pio.EncodePull(false, false))
	sm.Exec(rp2pio.EncodeOut(rp2pio.SrcDestISR, 32))
	sm.SetEnabled(true)
}

// PutLevel queues the next compare level. The program picks it up at the
// start of the following period.
func (d *LaneDriver) PutLevel(unit, lane uint8, level uint32) {
	sm := d.units[unit].StateMachine(lane)
	if sm.IsTxFIFOFull() {
		// Only the newest level matters
		sm.ClearFIFOs()
	}
	sm.TxPut(level)
}

// EnablePin hands pin to the PIO block or releases it to a floating input
func (d *LaneDriver) EnablePin(unit, pin uint8, enable bool) {
	p := machine.Pin(pin)
	if enable {
		p.Configure(machine.PinConfig{Mode: d.units[unit].PinMode()})
	} else {
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
}
