package core

import (
	"math"

	"pwmworker/protocol"
)

// Gamma is the exponent of the perceptual brightness curve
const Gamma = 2.8

// GammaTable and LinearTable map an 8-bit level to a duty cycle
var (
	GammaTable  [256]float32
	LinearTable [256]float32
)

func init() {
	for i := range GammaTable {
		x := float64(i) / 255
		GammaTable[i] = float32(math.Pow(x, Gamma))
		LinearTable[i] = float32(x)
	}
}

// Duty maps a level through the table selected by mode and applies
// active-low inversion
func Duty(level, mode uint8) float32 {
	var d float32
	if mode&protocol.ModeGamma != 0 {
		d = GammaTable[level]
	} else {
		d = LinearTable[level]
	}
	if mode&protocol.ModeActiveLow != 0 {
		d = 1 - d
	}
	return d
}
