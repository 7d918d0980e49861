//go:build rp2040

package main

import (
	"machine"
	"time"

	"pwmworker/core"
	"pwmworker/protocol"
	"pwmworker/targets/pio"
)

var (
	regs    *core.RegisterFile
	pwm     *core.PWMManager
	engine  *core.Engine
	blinker *statusBlinker

	// Debug counters
	loopPanics uint32
)

func main() {
	// Disable any watchdog left running across a soft reset until init is done
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitDebugConsole()
	core.SetDebugWriter(DebugPrintln)
	core.InitAsyncDebug()
	UpdateSystemTime()

	core.Info("pwmworker v" + core.Itoa(protocol.Version) + " starting, sysclk " +
		core.Itoa(int(machine.CPUFrequency()/1000000)) + " MHz")

	blinker = newStatusBlinker(statusLED)

	// Register file first: the bus may start talking as soon as we listen
	regs = core.NewRegisterFile()

	pwm = core.NewPWMManager(machine.CPUFrequency(), core.NewPool(pio.ProgramLen),
		NewSliceDriver(), pio.NewLaneDriver())

	wdt, err := startWatchdog(watchdogTimeoutMS)
	if err != nil {
		core.Error("watchdog: " + err.Error())
	}
	engine = core.NewEngine(regs, pwm, channelPins, wdt, rebooter{})
	if failed := engine.Start(); failed > 0 {
		core.Error("board: " + core.Itoa(failed) + " channels have no PWM resource")
	}

	target, err := NewI2CTarget(i2cBus, i2cSDA, i2cSCL, i2cAddress, regs)
	if err != nil {
		// Without the bus the worker is useless; restart and try again
		core.Error("i2c: " + err.Error())
		core.DumpEventRing()
		rebooter{}.Reset()
	}
	go target.Serve()
	core.Info("i2c: target at " + core.Hex8(i2cAddress))

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					loopPanics++
					core.Error("main: recovered panic #" + core.Itoa(int(loopPanics)))
				}
			}()

			UpdateSystemTime()
			engine.Step()
			blinker.update(core.NowUS(), pwm.OutputsEnabled())
		}()

		// Yield to the I2C target goroutine
		time.Sleep(10 * time.Microsecond)
	}
}
