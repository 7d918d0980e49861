package core

import "pwmworker/protocol"

// Reset handshake timing
const (
	HandshakeWindowUS = 5000 * USPerMS // arm to confirm
	ResetGraceUS      = 10 * USPerMS   // confirm to restart, lets the I2C ACK finish
)

// HandshakeState is the progress of the reset handshake
type HandshakeState uint8

const (
	HandshakeIdle HandshakeState = iota
	HandshakeArmed
	HandshakeConfirmed
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeArmed:
		return "armed"
	case HandshakeConfirmed:
		return "confirmed"
	}
	return "idle"
}

// Handshake guards device restarts behind an arm/confirm byte sequence
// written to the reset register. Anything out of sequence, or a confirm
// arriving after the arm window, returns it to idle.
type Handshake struct {
	state       HandshakeState
	code        uint8
	armedAt     uint64
	confirmedAt uint64
}

// Feed advances the handshake with one byte written at time now
func (h *Handshake) Feed(b uint8, now uint64) {
	switch {
	case b == protocol.ResetArm:
		h.state = HandshakeArmed
		h.code = 0
		h.armedAt = now

	case (b == protocol.ResetCPU || b == protocol.ResetBootloader) &&
		h.state == HandshakeArmed && now-h.armedAt < HandshakeWindowUS:
		h.state = HandshakeConfirmed
		h.code = b
		h.confirmedAt = now

	default:
		*h = Handshake{}
	}
}

// Expire drops an arm that has outlived its window
func (h *Handshake) Expire(now uint64) {
	if h.state == HandshakeArmed && now-h.armedAt >= HandshakeWindowUS {
		*h = Handshake{}
	}
}

// Pending returns the confirmed reset code once the grace period has
// elapsed. The handshake returns to idle when a code is returned.
func (h *Handshake) Pending(now uint64) (uint8, bool) {
	if h.state != HandshakeConfirmed || now-h.confirmedAt < ResetGraceUS {
		return 0, false
	}
	code := h.code
	*h = Handshake{}
	return code, true
}

// State returns the current handshake state
func (h *Handshake) State() HandshakeState {
	return h.state
}

// Readback is the value a bus read of the reset register returns: 0 when
// idle, the arm code while armed, the confirmed code once confirmed.
func (h *Handshake) Readback() uint8 {
	switch h.state {
	case HandshakeArmed:
		return protocol.ResetArm
	case HandshakeConfirmed:
		return h.code
	}
	return 0
}
