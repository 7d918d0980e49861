//go:build rp2040

package pio

import (
	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// pwm
//
//	.side_set 1 opt
//	    pull noblock    side 0 ; new level from the FIFO, else X
//	    mov x, osr
//	    mov y, isr             ; ISR holds the period
//	countloop:
//	    jmp x!=y noset
//	    jmp skip        side 1 ; raise the pin once Y reaches the level
//	noset:
//	    nop
//	skip:
//	    jmp y-- countloop

const pwmWrapTarget = 0
const pwmWrap = 6

var pwmInstructions = []uint16{
	//     .wrap_target
	0x9080, //  0: pull   noblock         side 0
	0xa027, //  1: mov    x, osr
	0xa046, //  2: mov    y, isr
	0x00a5, //  3: jmp    x != y, 5
	0x1806, //  4: jmp    6               side 1
	0xa042, //  5: nop
	0x0083, //  6: jmp    y--, 3
	//     .wrap
}

const pwmOrigin = -1

// ProgramLen is the soft-PWM program size in instruction words
const ProgramLen = 7

func pwmProgramDefaultConfig(offset uint8) rp2pio.StateMachineConfig {
	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset+pwmWrapTarget, offset+pwmWrap)
	cfg.SetSidesetParams(2, true, false)
	return cfg
}
