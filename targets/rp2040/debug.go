//go:build rp2040

package main

import (
	"machine"
)

var debugEnabled bool

// InitDebugConsole configures the USB CDC console the firmware logs to
func InitDebugConsole() {
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		debugEnabled = false
		return
	}
	debugEnabled = true
}

// DebugPrintln writes a line to the console
func DebugPrintln(s string) {
	if !debugEnabled {
		return
	}
	machine.Serial.Write([]byte(s))
	machine.Serial.Write([]byte("\r\n"))
}
