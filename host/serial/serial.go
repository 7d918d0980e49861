// Package serial opens the PWM worker's USB/UART console and reads its log
// output.
package serial

import (
	"io"
)

// Port is the device console as seen by Tail. NativePort implements it over
// a real tty; tests substitute an in-memory reader.
type Port interface {
	io.ReadWriteCloser

	// Flush discards console output received but not yet read
	Flush() error
}

// Config selects the console tty
type Config struct {
	// Device is the tty the worker enumerates as, /dev/ttyACM0 for USB CDC
	Device string

	// Baud applies to a UART console; USB CDC ignores it
	Baud int

	// ReadTimeout in milliseconds bounds each read so Tail can notice
	// cancellation on a quiet console
	ReadTimeout int
}

// DefaultConfig returns the console settings the firmware uses
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
