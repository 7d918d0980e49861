// Package protocol defines the I2C register map shared by the PWM worker
// firmware and the host driver.
package protocol

// Version is the firmware version reported in RegVersion
const Version = 0x01

// DeviceID is the fixed identification code reported in RegDeviceID
const DeviceID = 0x5A

// DefaultAddress is the 7-bit I2C target address used when the board has no
// address straps.
const DefaultAddress = 0x30

// NumChannels is the number of abstract output channels
const NumChannels = 24

// RegFileSize is the size of the register file. Address auto-increment wraps
// at this boundary.
const RegFileSize = 256

// Register addresses
const (
	RegLevel0   = 0x00 // 0x00-0x17: channel levels, 0-255
	RegCtrl0    = 0x18
	RegCtrl1    = 0x19 // reserved
	RegFreqLo   = 0x1A // global PWM frequency in Hz, little-endian
	RegFreqHi   = 0x1B
	RegVersion  = 0x1E // read-only
	RegDeviceID = 0x1F // read-only
	RegConfig0  = 0x20 // 0x20+4n: per-channel configuration block
	RegReset    = 0xDD // reset handshake
)

// CTRL0 bits
const (
	Ctrl0OutputEnable = 1 << 0
	Ctrl0HardReset    = 1 << 6 // set at boot, cleared by the host
	Ctrl0ResetRegs    = 1 << 7 // write 1 to restore defaults; reads 0 when done
)

// Per-channel configuration block layout, relative to ConfigAddr(n)
const (
	CfgMode      = 0
	CfgLimit     = 1
	CfgTimeoutLo = 2
	CfgTimeoutHi = 3
	CfgBlockSize = 4
)

// Mode bits in the CfgMode byte
const (
	ModeActiveLow = 1 << 0
	ModeGamma     = 1 << 1
)

// Reset handshake codes written to RegReset
const (
	ResetArm        = 0x11
	ResetCPU        = 0x22
	ResetBootloader = 0x33
)

// Power-on defaults
const (
	DefaultFreq  = 20000
	LimitOff     = 0xFF
	DefaultLevel = 0
)

// LevelAddr returns the level register address for a channel
func LevelAddr(ch int) uint8 {
	return uint8(RegLevel0 + ch)
}

// ConfigAddr returns the first address of a channel's configuration block
func ConfigAddr(ch int) uint8 {
	return uint8(RegConfig0 + CfgBlockSize*ch)
}

// IsReadOnly reports whether writes to addr are ignored by the device
func IsReadOnly(addr uint8) bool {
	return addr == RegVersion || addr == RegDeviceID
}

// Uint16 decodes a little-endian 16-bit register pair
func Uint16(lo, hi byte) uint16 {
	return uint16(lo) | uint16(hi)<<8
}

// PutUint16 encodes v as a little-endian register pair
func PutUint16(v uint16) (lo, hi byte) {
	return byte(v), byte(v >> 8)
}
