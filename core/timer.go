package core

// Never is the deadline value meaning "no deadline armed"
const Never = ^uint64(0)

// USPerMS converts milliseconds to clock ticks
const USPerMS = 1000

// NowUS returns the monotonic system time in microseconds
func NowUS() uint64 {
	return getSystemTicks()
}

// SetTime sets the current system time (called by target code each loop
// iteration and by tests)
func SetTime(us uint64) {
	setSystemTicks(us)
}

// AdvanceTime moves the clock forward by us microseconds
func AdvanceTime(us uint64) {
	setSystemTicks(getSystemTicks() + us)
}

// Expired reports whether deadline has been reached at time now.
// A Never deadline never expires.
func Expired(deadline, now uint64) bool {
	return deadline != Never && now >= deadline
}

// DeadlineAfterMS returns now + ms, in microseconds
func DeadlineAfterMS(now uint64, ms uint32) uint64 {
	return now + uint64(ms)*USPerMS
}
