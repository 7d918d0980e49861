package core

// RP2040 PWM resources
const (
	NumGPIO          = 30
	NumSlices        = 8
	ChannelsPerSlice = 2
	NumPIOUnits      = 2
	LanesPerUnit     = 4
	PIOInstrSlots    = 32 // instruction memory words per PIO unit

	noPin = 0xFF
)

// Slice hardware limits
const (
	sliceDivMin16 = 16   // 1.0 in 8.4 fixed point
	sliceDivMax16 = 4095 // 255 + 15/16

	// CC is 16 bits, so full duty (CC = TOP+1) needs TOP below 0xFFFF
	sliceTopMax = 65534
)

// PIO clock divider limits and soft-PWM loop shape. Each count of the PWM
// loop takes laneCyclesPerCnt instructions; reloading the period costs
// laneOverhead counts' worth of cycles.
const (
	laneDivMin256    = 256
	laneDivMax256    = 65535*256 + 255
	lanePeriodMax    = 65535
	laneCyclesPerCnt = 3
	laneOverhead     = 2
)

// BindingKind tags which resource pool a pin is bound to
type BindingKind uint8

const (
	BindNone BindingKind = iota // assignment failed / not assigned
	BindSlice
	BindLane
)

func (k BindingKind) String() string {
	switch k {
	case BindSlice:
		return "slice"
	case BindLane:
		return "lane"
	}
	return "none"
}

// Binding is the result of assigning a pin to a physical PWM resource
type Binding struct {
	Kind BindingKind
	Pin  uint8

	// BindSlice
	Slice   uint8
	Channel uint8

	// BindLane
	Unit        uint8
	Lane        uint8
	LoadProgram bool // the PWM program must be loaded into Unit first
}

// SliceSlot tracks which pin owns each channel of a slice
type SliceSlot struct {
	Owner [ChannelsPerSlice]uint8
}

// PIOUnit tracks one PIO block: program residency, free instruction memory
// and lane ownership. Reserved lanes belong to other firmware.
type PIOUnit struct {
	ProgramLoaded bool
	FreeInstr     uint8
	LaneOwner     [LanesPerUnit]uint8
	Reserved      [LanesPerUnit]bool
}

func (u *PIOUnit) freeLane() (uint8, bool) {
	for l := uint8(0); l < LanesPerUnit; l++ {
		if u.LaneOwner[l] == noPin && !u.Reserved[l] {
			return l, true
		}
	}
	return 0, false
}

// Pool is the complete allocation state. It is a plain value: Assign
// returns an updated copy and never mutates its argument.
type Pool struct {
	Slices     [NumSlices]SliceSlot
	Units      [NumPIOUnits]PIOUnit
	ProgramLen uint8
}

// NewPool returns an empty pool for a soft-PWM program of programLen words
func NewPool(programLen uint8) Pool {
	p := Pool{ProgramLen: programLen}
	for s := range p.Slices {
		for c := range p.Slices[s].Owner {
			p.Slices[s].Owner[c] = noPin
		}
	}
	for u := range p.Units {
		p.Units[u].FreeInstr = PIOInstrSlots
		for l := range p.Units[u].LaneOwner {
			p.Units[u].LaneOwner[l] = noPin
		}
	}
	return p
}

// SliceOf returns the slice and channel hard-wired to a GPIO
func SliceOf(pin uint8) (slice, channel uint8) {
	return (pin >> 1) & 0x7, pin & 1
}

// Lookup returns the existing binding for pin, if any
func (p Pool) Lookup(pin uint8) (Binding, bool) {
	slice, channel := SliceOf(pin)
	if p.Slices[slice].Owner[channel] == pin {
		return Binding{Kind: BindSlice, Pin: pin, Slice: slice, Channel: channel}, true
	}
	for u := range p.Units {
		for l := range p.Units[u].LaneOwner {
			if p.Units[u].LaneOwner[l] == pin {
				return Binding{Kind: BindLane, Pin: pin, Unit: uint8(u), Lane: uint8(l)}, true
			}
		}
	}
	return Binding{Pin: pin}, false
}

// Assign binds pin to a physical PWM resource, preferring the pin's native
// slice channel. When that channel belongs to another pin the pin falls back
// to a PIO lane: first a lane on a unit that already runs the PWM program,
// then a unit with room to load it. Kind is BindNone when nothing is free.
func Assign(p Pool, pin uint8) (Pool, Binding) {
	if pin >= NumGPIO {
		return p, Binding{Pin: pin}
	}
	if b, ok := p.Lookup(pin); ok {
		return p, b
	}

	slice, channel := SliceOf(pin)
	if p.Slices[slice].Owner[channel] == noPin {
		p.Slices[slice].Owner[channel] = pin
		return p, Binding{Kind: BindSlice, Pin: pin, Slice: slice, Channel: channel}
	}

	// Reuse a resident program before spending instruction memory
	for u := range p.Units {
		unit := &p.Units[u]
		if !unit.ProgramLoaded {
			continue
		}
		if l, ok := unit.freeLane(); ok {
			unit.LaneOwner[l] = pin
			return p, Binding{Kind: BindLane, Pin: pin, Unit: uint8(u), Lane: l}
		}
	}

	for u := range p.Units {
		unit := &p.Units[u]
		if unit.ProgramLoaded || unit.FreeInstr < p.ProgramLen {
			continue
		}
		if l, ok := unit.freeLane(); ok {
			unit.ProgramLoaded = true
			unit.FreeInstr -= p.ProgramLen
			unit.LaneOwner[l] = pin
			return p, Binding{Kind: BindLane, Pin: pin, Unit: uint8(u), Lane: l, LoadProgram: true}
		}
	}

	return p, Binding{Pin: pin}
}

// SliceTiming is a slice divider/wrap pair
type SliceTiming struct {
	Div16   uint32 // 8.4 fixed-point divider
	Top     uint32 // counter wraps after Top, giving Top+1 steps
	Clamped bool   // requested frequency was below the representable floor
}

// Hz returns the output frequency this timing produces
func (t SliceTiming) Hz(sysHz uint32) float64 {
	return float64(sysHz) * 16 / (float64(t.Div16) * float64(t.Top+1))
}

// SliceTimingFor picks the smallest divider that reaches freq, which gives
// the largest usable resolution.
func SliceTimingFor(sysHz, freq uint32) SliceTiming {
	if freq == 0 {
		freq = 1
	}
	cycles16 := uint64(sysHz) * 16 / uint64(freq)

	div := (cycles16 + sliceTopMax) / (sliceTopMax + 1) // ceil
	if div < sliceDivMin16 {
		// frequency too high for full resolution: run undivided
		div = sliceDivMin16
	}
	if div > sliceDivMax16 {
		return SliceTiming{Div16: sliceDivMax16, Top: sliceTopMax, Clamped: true}
	}

	top := cycles16/div - 1
	if top > sliceTopMax {
		top = sliceTopMax
	}
	return SliceTiming{Div16: uint32(div), Top: uint32(top)}
}

// LaneTiming is a PIO lane divider/period pair
type LaneTiming struct {
	Div256  uint32 // 16.8 fixed-point divider
	Period  uint32 // counts per PWM cycle
	Clamped bool
}

// Hz returns the output frequency this timing produces
func (t LaneTiming) Hz(sysHz uint32) float64 {
	cycles := float64(laneCyclesPerCnt) * float64(t.Period+laneOverhead)
	return float64(sysHz) * 256 / (float64(t.Div256) * cycles)
}

// LaneTimingFor applies the slice policy to the PIO loop: smallest divider,
// largest period.
func LaneTimingFor(sysHz, freq uint32) LaneTiming {
	if freq == 0 {
		freq = 1
	}
	cycles256 := uint64(sysHz) * 256 / uint64(freq)
	maxCycles := uint64(laneCyclesPerCnt) * (lanePeriodMax + laneOverhead)

	div := (cycles256 + maxCycles - 1) / maxCycles
	if div < laneDivMin256 {
		div = laneDivMin256
	}
	if div > laneDivMax256 {
		return LaneTiming{Div256: laneDivMax256, Period: lanePeriodMax, Clamped: true}
	}

	counts := cycles256 / (div * laneCyclesPerCnt)
	if counts <= laneOverhead {
		counts = laneOverhead + 1
	}
	period := counts - laneOverhead
	if period > lanePeriodMax {
		period = lanePeriodMax
	}
	return LaneTiming{Div256: uint32(div), Period: uint32(period)}
}

// SliceLevel converts a duty fraction to a slice compare value
func SliceLevel(duty float32, top uint32) uint32 {
	return uint32(clampDuty(duty)*float32(top+1) + 0.5)
}

// LaneLevel converts a duty fraction to the value pushed into the PIO
// program. The program raises its output once its down-counter matches the
// value, so n high counts need n-1, and a value past the period never matches.
func LaneLevel(duty float32, period uint32) uint32 {
	n := uint32(clampDuty(duty)*float32(period+1) + 0.5)
	if n == 0 {
		return period + 1
	}
	return n - 1
}

func clampDuty(d float32) float32 {
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}
