package core

import "pwmworker/protocol"

// Watchdog is the hardware watchdog fed once per loop
type Watchdog interface {
	Update()
}

// Rebooter restarts the chip. On hardware neither method returns.
type Rebooter interface {
	Reset()
	ResetToBootloader()
}

// channelState is the engine's view of one abstract channel
type channelState struct {
	level     uint8   // last level observed in the register file
	duty      float32 // last duty pushed to the PWM manager
	applied   bool
	deadline  uint64 // throttle deadline, Never when disarmed
	throttled bool
}

// Engine is the main-loop worker: it turns register file contents into
// PWM output. Step is called forever from the firmware's main loop.
type Engine struct {
	regs   *RegisterFile
	pwm    *PWMManager
	wdt    Watchdog
	reboot Rebooter

	pins [protocol.NumChannels]uint8
	ch   [protocol.NumChannels]channelState

	freq    uint16
	enabled bool
}

// NewEngine wires the register file to the PWM manager. pins maps each
// abstract channel to its GPIO.
func NewEngine(regs *RegisterFile, pwm *PWMManager, pins [protocol.NumChannels]uint8, wdt Watchdog, reboot Rebooter) *Engine {
	e := &Engine{
		regs:   regs,
		pwm:    pwm,
		wdt:    wdt,
		reboot: reboot,
		pins:   pins,
	}
	e.resetChannels()
	return e
}

func (e *Engine) resetChannels() {
	for c := range e.ch {
		e.ch[c] = channelState{deadline: Never}
	}
}

// Start binds every channel's pin and applies the power-on frequency.
// Bindings are fixed from here on. It returns the number of channels that
// could not be bound.
func (e *Engine) Start() int {
	failed := 0
	for c, pin := range e.pins {
		if !e.pwm.AssignChannel(pin) {
			Error("engine: channel " + itoa(c) + " (" + pinName(pin) + ") left inert")
			failed++
		}
	}
	if f, ok := e.regs.AtomicRead16(protocol.RegFreqLo); ok {
		e.freq = f
		e.pwm.ApplyFreq(uint32(f))
	}
	Info("engine: started, " + itoa(len(e.pins)-failed) + "/" + itoa(len(e.pins)) + " channels bound")
	return failed
}

// Step runs one pass of the main loop
func (e *Engine) Step() {
	now := NowUS()

	e.wdt.Update()

	if code, ok := e.regs.PendingReset(now); ok {
		e.restart(code)
		return
	}

	if e.regs.ResetRequested() {
		e.regs.ResetDefaults()
		e.resetChannels()
		RecordEvent(EvtRegReset, 0, 0, 0)
		Info("engine: registers reset to defaults")
	}

	for c := range e.pins {
		e.updateChannel(c, now)
	}

	if f, ok := e.regs.AtomicRead16(protocol.RegFreqLo); ok && f != e.freq {
		e.freq = f
		e.pwm.ApplyFreq(uint32(f))
	}

	enabled := e.regs.Read(protocol.RegCtrl0)&protocol.Ctrl0OutputEnable != 0
	if enabled != e.enabled {
		e.enabled = enabled
		e.pwm.EnableOutputs(enabled)
	}
}

func (e *Engine) updateChannel(c int, now uint64) {
	r, ok := e.regs.ReadChannel(c)
	if !ok {
		return
	}
	st := &e.ch[c]

	if r.Level != st.level {
		switch {
		case r.Level <= r.Limit:
			if st.deadline != Never || st.throttled {
				RecordEvent(EvtThrottleClear, uint8(c), uint32(r.Level), uint32(r.Limit))
			}
			st.deadline = Never
			st.throttled = false
		// A zero timeout disables the power limit
		case st.level <= r.Limit && r.TimeoutMS != 0:
			st.deadline = DeadlineAfterMS(now, uint32(r.TimeoutMS))
			RecordEvent(EvtThrottleArm, uint8(c), uint32(r.Level), uint32(r.TimeoutMS))
		}
		st.level = r.Level
	}

	duty := Duty(r.Level, r.Mode)
	if Expired(st.deadline, now) {
		if !st.throttled {
			st.throttled = true
			RecordEvent(EvtThrottleOn, uint8(c), uint32(r.Level), uint32(r.Limit))
			Warn("engine: channel " + itoa(c) + " limited to " + itoa(int(r.Limit)))
		}
		duty = Duty(r.Limit, r.Mode)
	}

	if !st.applied || duty != st.duty {
		st.duty = duty
		st.applied = true
		e.pwm.SetLevel(e.pins[c], duty)
	}
}

func (e *Engine) restart(code uint8) {
	RecordEvent(EvtHandshake, 0, uint32(code), 0)
	Warn("engine: reset " + hex8(code) + " confirmed, restarting")
	DumpEventRing()

	if code == protocol.ResetBootloader {
		e.reboot.ResetToBootloader()
	} else {
		e.reboot.Reset()
	}
}

// Duty returns the effective duty last pushed for channel c
func (e *Engine) Duty(c int) float32 {
	return e.ch[c].duty
}

// Throttled reports whether channel c is held at its power limit
func (e *Engine) Throttled(c int) bool {
	return e.ch[c].throttled
}
