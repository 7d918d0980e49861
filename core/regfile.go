package core

import "pwmworker/protocol"

// busPhase is the handler's position within a bus transaction. In
// phaseAddress the next written byte selects the register; in phaseData
// written bytes are stored at the cursor.
type busPhase uint8

const (
	phaseIdle busPhase = iota
	phaseAddress
	phaseData
)

// ChannelRegs is a consistent snapshot of one channel's registers
type ChannelRegs struct {
	Level     uint8
	Mode      uint8
	Limit     uint8
	TimeoutMS uint16
}

// RegisterFile is the I2C register map. The bus side (Start, Receive,
// Transmit, Stop) runs in interrupt context and does constant work per byte.
// The main loop reads through the Read* methods, which fail rather than
// return a value the current write transaction has partly overwritten.
type RegisterFile struct {
	regs  [protocol.RegFileSize]byte
	addr  uint8 // wraps at the register file boundary
	phase busPhase

	// touched[a] == gen marks bytes stored by the write in progress
	touched [protocol.RegFileSize]uint16
	gen     uint16
	writing bool

	hs Handshake
}

// NewRegisterFile returns a register file in its power-on state: defaults
// loaded and the hardware-reset flag raised.
func NewRegisterFile() *RegisterFile {
	rf := &RegisterFile{}
	rf.regs[protocol.RegVersion] = protocol.Version
	rf.regs[protocol.RegDeviceID] = protocol.DeviceID
	rf.ResetDefaults()
	rf.regs[protocol.RegCtrl0] = protocol.Ctrl0HardReset
	return rf
}

// Bus side

// Start begins a write transaction
func (rf *RegisterFile) Start() {
	state := disableInterrupts()
	rf.phase = phaseAddress
	rf.gen++
	if rf.gen == 0 {
		// Generation wrapped: forget stale marks so they cannot alias
		rf.touched = [protocol.RegFileSize]uint16{}
		rf.gen = 1
	}
	rf.writing = true
	restoreInterrupts(state)
}

// Receive handles one byte written by the controller
func (rf *RegisterFile) Receive(b byte) {
	state := disableInterrupts()
	switch rf.phase {
	case phaseAddress:
		rf.addr = b
		rf.phase = phaseData
	case phaseData:
		rf.store(b)
		rf.addr++
	}
	restoreInterrupts(state)
}

func (rf *RegisterFile) store(b byte) {
	switch {
	case rf.addr == protocol.RegReset:
		rf.hs.Feed(b, NowUS())
	case protocol.IsReadOnly(rf.addr):
		// ignored
	default:
		rf.regs[rf.addr] = b
		rf.touched[rf.addr] = rf.gen
	}
}

// Transmit returns the byte at the cursor for a controller read and
// advances the cursor
func (rf *RegisterFile) Transmit() byte {
	state := disableInterrupts()
	var b byte
	if rf.addr == protocol.RegReset {
		b = rf.hs.Readback()
	} else {
		b = rf.regs[rf.addr]
	}
	rf.addr++
	restoreInterrupts(state)
	return b
}

// Stop ends the current transaction (stop or repeated start)
func (rf *RegisterFile) Stop() {
	state := disableInterrupts()
	rf.phase = phaseIdle
	rf.writing = false
	restoreInterrupts(state)
}

// Main-loop side

// inFlight reports whether the write in progress has stored addr.
// Callers hold the critical section.
func (rf *RegisterFile) inFlight(addr uint8) bool {
	return rf.writing && rf.touched[addr] == rf.gen
}

// Read returns a single register byte
func (rf *RegisterFile) Read(addr uint8) byte {
	state := disableInterrupts()
	b := rf.regs[addr]
	restoreInterrupts(state)
	return b
}

// AtomicRead16 reads the little-endian pair at addr, addr+1. It reports
// false when the write in progress has already stored either byte; the
// caller tries again on its next pass.
func (rf *RegisterFile) AtomicRead16(addr uint8) (uint16, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	hi := addr + 1
	if rf.inFlight(addr) || rf.inFlight(hi) {
		return 0, false
	}
	return protocol.Uint16(rf.regs[addr], rf.regs[hi]), true
}

// ReadChannel snapshots a channel's level and configuration block. It
// fails under the same rule as AtomicRead16.
func (rf *RegisterFile) ReadChannel(ch int) (ChannelRegs, bool) {
	level := protocol.LevelAddr(ch)
	cfg := protocol.ConfigAddr(ch)

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if rf.inFlight(level) {
		return ChannelRegs{}, false
	}
	for i := uint8(0); i < protocol.CfgBlockSize; i++ {
		if rf.inFlight(cfg + i) {
			return ChannelRegs{}, false
		}
	}
	return ChannelRegs{
		Level:     rf.regs[level],
		Mode:      rf.regs[cfg+protocol.CfgMode],
		Limit:     rf.regs[cfg+protocol.CfgLimit],
		TimeoutMS: protocol.Uint16(rf.regs[cfg+protocol.CfgTimeoutLo], rf.regs[cfg+protocol.CfgTimeoutHi]),
	}, true
}

// ResetRequested reports whether CTRL0 bit7 is set
func (rf *RegisterFile) ResetRequested() bool {
	return rf.Read(protocol.RegCtrl0)&protocol.Ctrl0ResetRegs != 0
}

// ResetDefaults restores every writable register to its power-on value.
// Identification registers are preserved and CTRL0 is cleared last, so a
// controller polling bit7 sees it drop only once the reset is complete.
func (rf *RegisterFile) ResetDefaults() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for a := 0; a < protocol.RegFileSize; a++ {
		addr := uint8(a)
		if addr == protocol.RegCtrl0 || protocol.IsReadOnly(addr) {
			continue
		}
		rf.regs[addr] = 0
	}
	for ch := 0; ch < protocol.NumChannels; ch++ {
		rf.regs[protocol.ConfigAddr(ch)+protocol.CfgLimit] = protocol.LimitOff
	}
	rf.regs[protocol.RegFreqLo], rf.regs[protocol.RegFreqHi] = protocol.PutUint16(protocol.DefaultFreq)
	rf.regs[protocol.RegCtrl0] = 0
}

// Handshake

// PendingReset expires a stale arm and returns a confirmed reset code once
// its grace period has elapsed
func (rf *RegisterFile) PendingReset(now uint64) (uint8, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	rf.hs.Expire(now)
	return rf.hs.Pending(now)
}

// HandshakeState returns the reset handshake state
func (rf *RegisterFile) HandshakeState() HandshakeState {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return rf.hs.State()
}
