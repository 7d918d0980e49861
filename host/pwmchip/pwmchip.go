// Package pwmchip drives a 24-channel PWM worker over I2C.
//
// The driver keeps a local shadow of every writable register. Set, Get and
// EnableOutputs only touch the shadow; Task pushes whatever changed, one
// register per bus transaction, so it can be called from a periodic service
// loop. Port configuration and frequency are written synchronously and are
// meant to be called once at startup.
//
// Any bus satisfying tinygo.org/x/drivers.I2C works, including TinyGo's
// machine.I2C and periph.io's i2c.Bus.
package pwmchip

import (
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/drivers"

	"pwmworker/protocol"
)

var (
	// ErrBadChannel is returned for a channel outside 0-23
	ErrBadChannel = errors.New("pwmchip: invalid channel")
	// ErrWrongDevice is returned by Init when the ID register does not match
	ErrWrongDevice = errors.New("pwmchip: unexpected device ID")
	// ErrResetTimeout is returned by Init when the register reset never completes
	ErrResetTimeout = errors.New("pwmchip: register reset timed out")
)

const (
	resetPollAttempts = 50
	resetPollInterval = time.Millisecond
)

// ChipReg pairs the host's desired value with the last value written to the
// device.
type ChipReg struct {
	Local uint8
	Chip  uint8
}

// Dirty reports whether the device copy is out of date
func (r ChipReg) Dirty() bool {
	return r.Local != r.Chip
}

type portConfig struct {
	mode      uint8
	limit     uint8
	timeoutMS uint16
}

func defaultPort() portConfig {
	return portConfig{limit: protocol.LimitOff}
}

// Chip is one PWM worker on a bus. Callers serialize access per chip.
type Chip struct {
	bus  drivers.I2C
	addr uint16

	levels [protocol.NumChannels]ChipReg
	ctrl0  ChipReg
	ctrl1  ChipReg

	ports [protocol.NumChannels]portConfig
	freq  uint16

	reboot    uint8
	needInit  bool
	rebooting bool // handshake sent, device not yet seen restarting
}

// New returns a driver for the worker at addr. No bus traffic happens until
// Init.
func New(bus drivers.I2C, addr uint16) *Chip {
	c := &Chip{bus: bus, addr: addr, freq: protocol.DefaultFreq, needInit: true}
	for i := range c.ports {
		c.ports[i] = defaultPort()
	}
	return c
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("pwmchip: %w", err)
}

func validChannel(ch int) bool {
	return ch >= 0 && ch < protocol.NumChannels
}

func (c *Chip) write(reg uint8, data ...byte) error {
	w := make([]byte, 1+len(data))
	w[0] = reg
	copy(w[1:], data)
	return wrap(c.bus.Tx(c.addr, w, nil))
}

func (c *Chip) read(reg uint8) (uint8, error) {
	var r [1]byte
	if err := c.bus.Tx(c.addr, []byte{reg}, r[:]); err != nil {
		return 0, wrap(err)
	}
	return r[0], nil
}

// Init checks the device ID, restores the device's register defaults and
// then pushes the whole shadow: frequency, port configuration, levels and
// control registers.
func (c *Chip) Init() error {
	id, err := c.read(protocol.RegDeviceID)
	if err != nil {
		return err
	}
	if id != protocol.DeviceID {
		return fmt.Errorf("%w: 0x%02X", ErrWrongDevice, id)
	}

	if err := c.write(protocol.RegCtrl0, protocol.Ctrl0ResetRegs); err != nil {
		return err
	}
	if err := c.waitReset(); err != nil {
		return err
	}

	// The device now holds power-on defaults; only differences need sending
	if c.freq != protocol.DefaultFreq {
		lo, hi := protocol.PutUint16(c.freq)
		if err := c.write(protocol.RegFreqLo, lo, hi); err != nil {
			return err
		}
	}
	for ch, p := range c.ports {
		if p == defaultPort() {
			continue
		}
		if err := c.writePort(ch); err != nil {
			return err
		}
	}

	// Levels, CTRL0 and CTRL1 are contiguous
	burst := make([]byte, 0, protocol.NumChannels+2)
	for _, r := range c.levels {
		burst = append(burst, r.Local)
	}
	burst = append(burst, c.ctrl0.Local, c.ctrl1.Local)
	if err := c.write(protocol.RegLevel0, burst...); err != nil {
		return err
	}
	for i := range c.levels {
		c.levels[i].Chip = c.levels[i].Local
	}
	c.ctrl0.Chip = c.ctrl0.Local
	c.ctrl1.Chip = c.ctrl1.Local
	c.needInit = false
	return nil
}

// Attach adopts the device's current state as the shadow without resetting
// it, for one-shot tools that change a single register on a running board.
func (c *Chip) Attach() error {
	id, err := c.read(protocol.RegDeviceID)
	if err != nil {
		return err
	}
	if id != protocol.DeviceID {
		return fmt.Errorf("%w: 0x%02X", ErrWrongDevice, id)
	}

	var regs [protocol.NumChannels + 4]byte
	if err := wrap(c.bus.Tx(c.addr, []byte{protocol.RegLevel0}, regs[:])); err != nil {
		return err
	}
	for i := range c.levels {
		c.levels[i] = ChipReg{Local: regs[i], Chip: regs[i]}
	}
	c.ctrl0 = ChipReg{Local: regs[protocol.RegCtrl0], Chip: regs[protocol.RegCtrl0]}
	c.ctrl1 = ChipReg{Local: regs[protocol.RegCtrl1], Chip: regs[protocol.RegCtrl1]}
	c.freq = protocol.Uint16(regs[protocol.RegFreqLo], regs[protocol.RegFreqHi])

	var cfg [protocol.NumChannels * protocol.CfgBlockSize]byte
	if err := wrap(c.bus.Tx(c.addr, []byte{protocol.RegConfig0}, cfg[:])); err != nil {
		return err
	}
	for ch := range c.ports {
		b := cfg[ch*protocol.CfgBlockSize:]
		c.ports[ch] = portConfig{
			mode:      b[protocol.CfgMode],
			limit:     b[protocol.CfgLimit],
			timeoutMS: protocol.Uint16(b[protocol.CfgTimeoutLo], b[protocol.CfgTimeoutHi]),
		}
	}
	c.needInit = false
	return nil
}

// Port returns the shadow configuration of a channel
func (c *Chip) Port(ch int) (gamma, activeLow bool, limit uint8, timeoutMS uint16) {
	if !validChannel(ch) {
		return false, false, protocol.LimitOff, 0
	}
	p := c.ports[ch]
	return p.mode&protocol.ModeGamma != 0, p.mode&protocol.ModeActiveLow != 0, p.limit, p.timeoutMS
}

func (c *Chip) waitReset() error {
	for i := 0; i < resetPollAttempts; i++ {
		v, err := c.read(protocol.RegCtrl0)
		if err != nil {
			return err
		}
		if v&protocol.Ctrl0ResetRegs == 0 {
			return nil
		}
		time.Sleep(resetPollInterval)
	}
	return ErrResetTimeout
}

// NeedsInit reports whether the device must be (re)initialised before Task
// pushes levels, which is the case before the first Init and after a reboot.
func (c *Chip) NeedsInit() bool {
	return c.needInit
}

// Set stores a channel level in the shadow. Invalid channels are ignored.
func (c *Chip) Set(ch int, level uint8) {
	if !validChannel(ch) {
		return
	}
	c.levels[ch].Local = level
}

// Get returns the shadow level of a channel, or 0 for an invalid channel
func (c *Chip) Get(ch int) uint8 {
	if !validChannel(ch) {
		return 0
	}
	return c.levels[ch].Local
}

// EnableOutputs sets or clears CTRL0 bit0 in the shadow
func (c *Chip) EnableOutputs(on bool) {
	if on {
		c.ctrl0.Local |= protocol.Ctrl0OutputEnable
	} else {
		c.ctrl0.Local &^= protocol.Ctrl0OutputEnable
	}
}

// OutputsEnabled reports the shadow state of CTRL0 bit0
func (c *Chip) OutputsEnabled() bool {
	return c.ctrl0.Local&protocol.Ctrl0OutputEnable != 0
}

// ConfigurePort sets the transfer curve and polarity of a channel
func (c *Chip) ConfigurePort(ch int, gamma, activeLow bool) error {
	if !validChannel(ch) {
		return ErrBadChannel
	}
	var mode uint8
	if gamma {
		mode |= protocol.ModeGamma
	}
	if activeLow {
		mode |= protocol.ModeActiveLow
	}
	c.ports[ch].mode = mode
	return c.write(protocol.ConfigAddr(ch)+protocol.CfgMode, mode)
}

// ConfigureFlipperLogic sets the power limit of a channel. A level above
// limitLevel held for longer than timeoutMS is throttled to limitLevel by the
// device. limitLevel 0xFF or timeoutMS 0 disables the limit.
func (c *Chip) ConfigureFlipperLogic(ch int, limitLevel uint8, timeoutMS uint16) error {
	if !validChannel(ch) {
		return ErrBadChannel
	}
	c.ports[ch].limit = limitLevel
	c.ports[ch].timeoutMS = timeoutMS
	lo, hi := protocol.PutUint16(timeoutMS)
	return c.write(protocol.ConfigAddr(ch)+protocol.CfgLimit, limitLevel, lo, hi)
}

// SetFrequency writes the global PWM frequency in Hz. The device clamps
// values its hardware cannot produce.
func (c *Chip) SetFrequency(hz uint16) error {
	c.freq = hz
	lo, hi := protocol.PutUint16(hz)
	return c.write(protocol.RegFreqLo, lo, hi)
}

func (c *Chip) writePort(ch int) error {
	p := c.ports[ch]
	lo, hi := protocol.PutUint16(p.timeoutMS)
	return c.write(protocol.ConfigAddr(ch), p.mode, p.limit, lo, hi)
}

// Reboot queues a restart of the device, into the USB bootloader when
// toBootloader is set. The handshake is sent by the next Task.
func (c *Chip) Reboot(toBootloader bool) {
	if toBootloader {
		c.reboot = protocol.ResetBootloader
	} else {
		c.reboot = protocol.ResetCPU
	}
}

// Task pushes pending work to the device: a queued reboot handshake, a
// re-initialisation once the rebooted device reports its hardware-reset
// flag, then every dirty level followed by CTRL0
// and CTRL1. It stops at the first bus error; the failed register stays dirty
// and is retried on the next call.
func (c *Chip) Task() error {
	if c.reboot != 0 {
		// Two transactions: auto-increment would move the second byte off 0xDD
		if err := c.write(protocol.RegReset, protocol.ResetArm); err != nil {
			return err
		}
		if err := c.write(protocol.RegReset, c.reboot); err != nil {
			return err
		}
		c.reboot = 0
		c.needInit = true
		c.rebooting = true
		return nil
	}
	if c.rebooting {
		if !c.restarted() {
			return nil
		}
		c.rebooting = false
	}
	if c.needInit {
		return c.Init()
	}

	for i := range c.levels {
		if err := c.flush(&c.levels[i], protocol.LevelAddr(i)); err != nil {
			return err
		}
	}
	if err := c.flush(&c.ctrl0, protocol.RegCtrl0); err != nil {
		return err
	}
	return c.flush(&c.ctrl1, protocol.RegCtrl1)
}

// restarted reports whether a rebooting device is back up. Until the
// restart the old firmware still answers with CTRL0 bit6 clear, and during
// it the bus NACKs.
func (c *Chip) restarted() bool {
	v, err := c.read(protocol.RegCtrl0)
	return err == nil && v&protocol.Ctrl0HardReset != 0
}

// Rebooting reports whether a reboot was sent and the device has not come
// back yet
func (c *Chip) Rebooting() bool {
	return c.rebooting
}

func (c *Chip) flush(r *ChipReg, addr uint8) error {
	if !r.Dirty() {
		return nil
	}
	if err := c.write(addr, r.Local); err != nil {
		return err
	}
	r.Chip = r.Local
	return nil
}

// CheckReset reads CTRL0 and re-initialises the device when its
// hardware-reset flag is set. It reports whether a restart was detected.
func (c *Chip) CheckReset() (bool, error) {
	v, err := c.read(protocol.RegCtrl0)
	if err != nil {
		return false, err
	}
	if v&protocol.Ctrl0HardReset == 0 {
		return false, nil
	}
	return true, c.Init()
}

// Frequency returns the shadow PWM frequency
func (c *Chip) Frequency() uint16 {
	return c.freq
}

// Version reads the firmware version register
func (c *Chip) Version() (uint8, error) {
	return c.read(protocol.RegVersion)
}

func (c *Chip) String() string {
	return fmt.Sprintf("pwmchip{0x%02X}", c.addr)
}
