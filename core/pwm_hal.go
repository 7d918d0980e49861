package core

// SliceDriver is the hardware PWM slice interface that core code uses.
// Platform-specific implementations handle the actual registers.
type SliceDriver interface {
	// ConfigureSlice programs a slice's clock divider and wrap value and
	// starts its counter. div16 is the 8.4 fixed-point divider in sixteenths
	// (16 = divide by 1). The counter runs 0..top.
	ConfigureSlice(slice uint8, div16 uint32, top uint32)

	// SetCompare sets a channel's compare level, 0 (always low) to top+1
	// (always high)
	SetCompare(slice, channel uint8, level uint32)

	// EnablePin switches pin between the PWM function (true) and a
	// high-impedance input (false)
	EnablePin(pin uint8, enable bool)
}

// LaneDriver is the PIO soft-PWM interface that core code uses.
type LaneDriver interface {
	// LoadProgram loads the PWM program into a unit's instruction memory
	LoadProgram(unit uint8) error

	// StartLane claims a lane and starts it on pin running the loaded program
	StartLane(unit, lane, pin uint8) error

	// ConfigureLane sets a lane's clock divider (16.8 fixed point, in
	// 1/256ths) and period in counts
	ConfigureLane(unit, lane uint8, div256 uint32, period uint32)

	// PutLevel pushes a new compare level into a lane's input queue
	PutLevel(unit, lane uint8, level uint32)

	// EnablePin switches pin between the unit's PIO function (true) and a
	// high-impedance input (false)
	EnablePin(unit, pin uint8, enable bool)
}
