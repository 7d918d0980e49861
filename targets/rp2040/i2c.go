//go:build rp2040

package main

import (
	"errors"
	"machine"

	"pwmworker/core"
	"pwmworker/protocol"
)

// replyWindow is how many bytes are queued per controller read. Bytes the
// controller does not clock out are flushed by the hardware on NACK.
const replyWindow = 4

var errListen = errors.New("I2C target listen failed")

// I2CTarget serves the register file as an I2C target (bus slave)
type I2CTarget struct {
	bus  *machine.I2C
	regs *core.RegisterFile
	addr uint16
}

// NewI2CTarget configures bus in target mode at addr
func NewI2CTarget(bus *machine.I2C, sda, scl machine.Pin, addr uint16, regs *core.RegisterFile) (*I2CTarget, error) {
	err := bus.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       sda,
		SCL:       scl,
		Mode:      machine.I2CModeTarget,
	})
	if err != nil {
		return nil, err
	}
	if err := bus.Listen(addr); err != nil {
		return nil, errListen
	}
	return &I2CTarget{bus: bus, regs: regs, addr: addr}, nil
}

// Serve handles bus events forever. It runs on its own goroutine and only
// calls the register file's constant-time bus methods.
func (t *I2CTarget) Serve() {
	// Register address plus one full pass over the register file
	buf := make([]byte, 1+protocol.RegFileSize)
	reply := make([]byte, replyWindow)
	for {
		evt, n, err := t.bus.WaitForEvent(buf)
		if err != nil {
			core.Warn("i2c: " + err.Error())
			continue
		}

		switch evt {
		case machine.I2CReceive:
			t.regs.Start()
			for _, b := range buf[:n] {
				t.regs.Receive(b)
			}
			t.regs.Stop()

		case machine.I2CRequest:
			for i := range reply {
				reply[i] = t.regs.Transmit()
			}
			t.bus.Reply(reply)

		case machine.I2CFinish:
			// transaction complete
		}
	}
}
