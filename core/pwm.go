package core

import "pwmworker/protocol"

// pwmOutput is the runtime state of one bound pin
type pwmOutput struct {
	binding Binding
	duty    float32 // last requested duty, 0.0-1.0
	level   uint32  // last value written to the compare register or lane FIFO
}

// PWMManager owns the resource pool and drives the slice and lane hardware.
// Every bound pin shares one global frequency.
type PWMManager struct {
	sysHz  uint32
	pool   Pool
	slices SliceDriver
	lanes  LaneDriver

	outputs [NumGPIO]*pwmOutput
	bound   []uint8 // pins in assignment order

	sliceRunning [NumSlices]bool

	freq        uint32
	sliceTiming SliceTiming
	laneTiming  LaneTiming

	enabled bool
}

// NewPWMManager creates a manager for a system clock of sysHz. Timing starts
// at the power-on default frequency and outputs start disabled (high-Z).
func NewPWMManager(sysHz uint32, pool Pool, slices SliceDriver, lanes LaneDriver) *PWMManager {
	m := &PWMManager{
		sysHz:  sysHz,
		pool:   pool,
		slices: slices,
		lanes:  lanes,
	}
	m.setTiming(protocol.DefaultFreq)
	return m
}

func (m *PWMManager) setTiming(hz uint32) {
	m.freq = hz
	m.sliceTiming = SliceTimingFor(m.sysHz, hz)
	m.laneTiming = LaneTimingFor(m.sysHz, hz)
}

// AssignChannel binds pin to a slice channel or, when the native channel is
// taken, a PIO lane. Failure is logged and leaves the pin inert.
func (m *PWMManager) AssignChannel(pin uint8) bool {
	if pin < NumGPIO && m.outputs[pin] != nil {
		return true
	}

	// Each retry marks one unusable unit or lane, so this terminates
	for attempt := 0; attempt <= NumPIOUnits*(LanesPerUnit+1); attempt++ {
		pool, b := Assign(m.pool, pin)
		switch b.Kind {
		case BindSlice:
			m.pool = pool
			m.bindSlice(b)
			return true

		case BindLane:
			unit := &m.pool.Units[b.Unit]
			if b.LoadProgram {
				if err := m.lanes.LoadProgram(b.Unit); err != nil {
					Warn("pwm: PIO" + itoa(int(b.Unit)) + " program load failed: " + err.Error())
					unit.FreeInstr = 0
					continue
				}
				unit.ProgramLoaded = true
				unit.FreeInstr -= m.pool.ProgramLen
			}
			if err := m.lanes.StartLane(b.Unit, b.Lane, pin); err != nil {
				Warn("pwm: PIO" + itoa(int(b.Unit)) + " lane " + itoa(int(b.Lane)) + " unavailable: " + err.Error())
				unit.Reserved[b.Lane] = true
				continue
			}
			m.pool = pool
			m.bindLane(b)
			return true
		}
		break
	}

	Error("pwm: no free slice channel or PIO lane for " + pinName(pin))
	RecordEvent(EvtAssignFailed, pin, 0, 0)
	return false
}

func (m *PWMManager) bindSlice(b Binding) {
	if !m.sliceRunning[b.Slice] {
		m.slices.ConfigureSlice(b.Slice, m.sliceTiming.Div16, m.sliceTiming.Top)
		m.sliceRunning[b.Slice] = true
	}
	o := &pwmOutput{binding: b}
	m.outputs[b.Pin] = o
	m.bound = append(m.bound, b.Pin)
	m.write(o, true)
	m.slices.EnablePin(b.Pin, m.enabled)

	RecordEvent(EvtAssignSlice, b.Pin, uint32(b.Slice), uint32(b.Channel))
	Info("pwm: " + pinName(b.Pin) + " -> slice " + itoa(int(b.Slice)) + ch(b.Channel))
}

func (m *PWMManager) bindLane(b Binding) {
	m.lanes.ConfigureLane(b.Unit, b.Lane, m.laneTiming.Div256, m.laneTiming.Period)
	o := &pwmOutput{binding: b}
	m.outputs[b.Pin] = o
	m.bound = append(m.bound, b.Pin)
	m.write(o, true)
	m.lanes.EnablePin(b.Unit, b.Pin, m.enabled)

	RecordEvent(EvtAssignLane, b.Pin, uint32(b.Unit), uint32(b.Lane))
	Info("pwm: " + pinName(b.Pin) + " -> PIO" + itoa(int(b.Unit)) + " lane " + itoa(int(b.Lane)))
}

func ch(c uint8) string {
	if c == 0 {
		return "A"
	}
	return "B"
}

// IsConfigured reports whether pin has a PWM binding
func (m *PWMManager) IsConfigured(pin uint8) bool {
	return pin < NumGPIO && m.outputs[pin] != nil
}

// Binding returns pin's binding; Kind is BindNone for unbound pins
func (m *PWMManager) Binding(pin uint8) Binding {
	if !m.IsConfigured(pin) {
		return Binding{Pin: pin}
	}
	return m.outputs[pin].binding
}

// Frequency returns the last requested frequency in Hz
func (m *PWMManager) Frequency() uint32 {
	return m.freq
}

// Timing returns the active slice and lane timing
func (m *PWMManager) Timing() (SliceTiming, LaneTiming) {
	return m.sliceTiming, m.laneTiming
}

// ApplyFreq reprograms every running slice and lane for hz and rescales the
// stored duty of each bound pin to the new resolution. Frequencies below the
// slice floor are clamped to the floor and logged.
func (m *PWMManager) ApplyFreq(hz uint32) {
	m.setTiming(hz)
	if m.sliceTiming.Clamped {
		Error("pwm: " + utoa(hz) + " Hz below slice floor, clamped to " +
			utoa(uint32(m.sliceTiming.Hz(m.sysHz))) + " Hz")
	}
	if m.laneTiming.Clamped {
		Error("pwm: " + utoa(hz) + " Hz below PIO floor, clamped")
	}

	for s := range m.sliceRunning {
		if m.sliceRunning[s] {
			m.slices.ConfigureSlice(uint8(s), m.sliceTiming.Div16, m.sliceTiming.Top)
		}
	}
	for _, pin := range m.bound {
		o := m.outputs[pin]
		if o.binding.Kind == BindLane {
			m.lanes.ConfigureLane(o.binding.Unit, o.binding.Lane, m.laneTiming.Div256, m.laneTiming.Period)
		}
		m.write(o, true)
	}

	RecordEvent(EvtFreq, 0, hz, m.sliceTiming.Top)
	Info("pwm: frequency " + utoa(hz) + " Hz, slice top " + utoa(m.sliceTiming.Top) +
		", lane period " + utoa(m.laneTiming.Period))
}

// SetLevel sets pin's duty cycle (0.0-1.0). Nothing is written when the
// resulting hardware value is unchanged.
func (m *PWMManager) SetLevel(pin uint8, duty float32) {
	if !m.IsConfigured(pin) {
		return
	}
	o := m.outputs[pin]
	duty = clampDuty(duty)
	if o.duty == duty {
		return
	}
	o.duty = duty
	m.write(o, false)
}

// GetLevel returns pin's last requested duty cycle
func (m *PWMManager) GetLevel(pin uint8) float32 {
	if !m.IsConfigured(pin) {
		return 0
	}
	return m.outputs[pin].duty
}

func (m *PWMManager) write(o *pwmOutput, force bool) {
	b := o.binding
	var level uint32
	if b.Kind == BindSlice {
		level = SliceLevel(o.duty, m.sliceTiming.Top)
	} else {
		level = LaneLevel(o.duty, m.laneTiming.Period)
	}
	if !force && level == o.level {
		return
	}
	o.level = level

	if b.Kind == BindSlice {
		m.slices.SetCompare(b.Slice, b.Channel, level)
	} else {
		m.lanes.PutLevel(b.Unit, b.Lane, level)
	}
}

// EnableOutputs switches every bound pin between its PWM function and a
// high-impedance input
func (m *PWMManager) EnableOutputs(enable bool) {
	if enable == m.enabled {
		return
	}
	m.enabled = enable
	for _, pin := range m.bound {
		b := m.outputs[pin].binding
		if b.Kind == BindSlice {
			m.slices.EnablePin(pin, enable)
		} else {
			m.lanes.EnablePin(b.Unit, pin, enable)
		}
	}

	v := uint32(0)
	if enable {
		v = 1
	}
	RecordEvent(EvtEnable, 0, v, uint32(len(m.bound)))
	if enable {
		Info("pwm: outputs enabled")
	} else {
		Info("pwm: outputs disabled")
	}
}

// OutputsEnabled reports whether bound pins are driven
func (m *PWMManager) OutputsEnabled() bool {
	return m.enabled
}
