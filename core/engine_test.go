package core

import (
	"math"
	"testing"

	"pwmworker/protocol"
)

type fakeWatchdog struct {
	feeds int
}

func (w *fakeWatchdog) Update() { w.feeds++ }

type fakeRebooter struct {
	resets, bootloader int
}

func (r *fakeRebooter) Reset()             { r.resets++ }
func (r *fakeRebooter) ResetToBootloader() { r.bootloader++ }

// testPins maps channel n to GPn, which puts channels 16-23 on PIO lanes
func testPins() [protocol.NumChannels]uint8 {
	var pins [protocol.NumChannels]uint8
	for i := range pins {
		pins[i] = uint8(i)
	}
	return pins
}

type engineFixture struct {
	rf     *RegisterFile
	pwm    *PWMManager
	slices *fakeSlices
	lanes  *fakeLanes
	wdt    *fakeWatchdog
	rb     *fakeRebooter
	e      *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	captureLog(t)
	ClearEventRing()
	SetTime(0)

	f := &engineFixture{
		rf:     NewRegisterFile(),
		slices: newFakeSlices(),
		lanes:  newFakeLanes(),
		wdt:    &fakeWatchdog{},
		rb:     &fakeRebooter{},
	}
	f.pwm = NewPWMManager(testSysHz, NewPool(7), f.slices, f.lanes)
	f.e = NewEngine(f.rf, f.pwm, testPins(), f.wdt, f.rb)
	if failed := f.e.Start(); failed != 0 {
		t.Fatalf("Start: %d channels unbound", failed)
	}
	return f
}

func TestGammaTables(t *testing.T) {
	if GammaTable[0] != 0 || GammaTable[255] != 1 {
		t.Errorf("gamma endpoints = %v, %v", GammaTable[0], GammaTable[255])
	}
	if LinearTable[0] != 0 || LinearTable[255] != 1 {
		t.Errorf("linear endpoints = %v, %v", LinearTable[0], LinearTable[255])
	}
	for i := 1; i < 256; i++ {
		if GammaTable[i] < GammaTable[i-1] {
			t.Fatalf("gamma table not monotonic at %d", i)
		}
	}
	want := math.Pow(128.0/255, Gamma)
	if math.Abs(float64(GammaTable[128])-want) > 1e-6 {
		t.Errorf("GammaTable[128] = %v, want %v", GammaTable[128], want)
	}
}

func TestDutyTransform(t *testing.T) {
	testCases := []struct {
		name  string
		level uint8
		mode  uint8
		want  float32
	}{
		{"linear", 51, 0, LinearTable[51]},
		{"gamma", 200, protocol.ModeGamma, GammaTable[200]},
		{"active low", 0, protocol.ModeActiveLow, 1},
		{"active low full", 255, protocol.ModeActiveLow, 0},
		{"gamma active low", 128, protocol.ModeGamma | protocol.ModeActiveLow, 1 - GammaTable[128]},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Duty(tc.level, tc.mode); got != tc.want {
				t.Errorf("Duty(%d, %02b) = %v, want %v", tc.level, tc.mode, got, tc.want)
			}
		})
	}
}

func TestEngineFeedsWatchdog(t *testing.T) {
	f := newEngineFixture(t)
	for i := 0; i < 5; i++ {
		f.e.Step()
	}
	if f.wdt.feeds != 5 {
		t.Errorf("watchdog fed %d times, want 5", f.wdt.feeds)
	}
}

func TestEnginePowerLimitScenario(t *testing.T) {
	f := newEngineFixture(t)
	const ch = 5

	// gamma on, active-low off, limit 128, timeout 1000 ms
	lo, hi := protocol.PutUint16(1000)
	busWrite(f.rf, protocol.ConfigAddr(ch), protocol.ModeGamma, 128, lo, hi)
	busWrite(f.rf, protocol.LevelAddr(ch), 255)

	f.e.Step()
	if got := f.e.Duty(ch); got != GammaTable[255] {
		t.Fatalf("duty at t=0 = %v, want gammaTable[255]", got)
	}

	AdvanceTime(999 * USPerMS)
	f.e.Step()
	if got := f.e.Duty(ch); got != GammaTable[255] {
		t.Errorf("duty at 999 ms = %v, want gammaTable[255]", got)
	}
	if f.e.Throttled(ch) {
		t.Error("throttled before timeout")
	}

	AdvanceTime(1 * USPerMS)
	f.e.Step()
	if got := f.e.Duty(ch); got != GammaTable[128] {
		t.Errorf("duty at 1000 ms = %v, want gammaTable[128]", got)
	}
	if !f.e.Throttled(ch) {
		t.Error("not throttled after timeout")
	}
	if got := f.pwm.GetLevel(5); got != GammaTable[128] {
		t.Errorf("PWM level = %v, want gammaTable[128]", got)
	}

	// Dropping to the limit clears the throttle
	busWrite(f.rf, protocol.LevelAddr(ch), 100)
	f.e.Step()
	if f.e.Throttled(ch) {
		t.Error("still throttled at a level below the limit")
	}
	if got := f.e.Duty(ch); got != GammaTable[100] {
		t.Errorf("duty = %v, want gammaTable[100]", got)
	}
}

func TestEngineLimitRearmsOnlyOnCrossing(t *testing.T) {
	f := newEngineFixture(t)
	const ch = 2

	lo, hi := protocol.PutUint16(500)
	busWrite(f.rf, protocol.ConfigAddr(ch), 0, 100, lo, hi)
	busWrite(f.rf, protocol.LevelAddr(ch), 200)
	f.e.Step()

	// A change that stays above the limit keeps the original deadline
	AdvanceTime(400 * USPerMS)
	busWrite(f.rf, protocol.LevelAddr(ch), 220)
	f.e.Step()

	AdvanceTime(100 * USPerMS)
	f.e.Step()
	if !f.e.Throttled(ch) {
		t.Fatal("deadline was re-armed by an above-limit change")
	}
	if got := f.e.Duty(ch); got != LinearTable[100] {
		t.Errorf("duty = %v, want linearTable[100]", got)
	}
}

func TestEngineZeroTimeoutNeverThrottles(t *testing.T) {
	f := newEngineFixture(t)
	busWrite(f.rf, protocol.ConfigAddr(0), 0, 10, 0, 0)
	busWrite(f.rf, protocol.LevelAddr(0), 255)
	f.e.Step()
	AdvanceTime(60000 * USPerMS)
	f.e.Step()
	if f.e.Throttled(0) || f.e.Duty(0) != 1 {
		t.Errorf("throttled=%v duty=%v, want full output", f.e.Throttled(0), f.e.Duty(0))
	}
}

func TestEngineSkipsChannelDuringWrite(t *testing.T) {
	f := newEngineFixture(t)
	busWrite(f.rf, protocol.LevelAddr(1), 255)
	f.e.Step()

	// Level half-way through a multi-register write is not applied yet
	f.rf.Start()
	f.rf.Receive(protocol.LevelAddr(1))
	f.rf.Receive(0)
	f.e.Step()
	if got := f.e.Duty(1); got != 1 {
		t.Errorf("duty during write = %v, want previous value 1", got)
	}
	f.rf.Stop()
	f.e.Step()
	if got := f.e.Duty(1); got != 0 {
		t.Errorf("duty after write = %v, want 0", got)
	}
}

func TestEngineActiveLowInverts(t *testing.T) {
	f := newEngineFixture(t)
	busWrite(f.rf, protocol.ConfigAddr(20), protocol.ModeActiveLow)
	f.e.Step()
	if got := f.pwm.GetLevel(20); got != 1 {
		t.Errorf("active-low channel at level 0 = %v, want 1", got)
	}
}

func TestEngineAppliesFrequencyAndEnable(t *testing.T) {
	f := newEngineFixture(t)

	lo, hi := protocol.PutUint16(1000)
	busWrite(f.rf, protocol.RegFreqLo, lo, hi)
	f.e.Step()
	if f.pwm.Frequency() != 1000 {
		t.Errorf("frequency = %d, want 1000", f.pwm.Frequency())
	}
	if f.pwm.OutputsEnabled() {
		t.Error("outputs enabled without CTRL0 bit0")
	}

	busWrite(f.rf, protocol.RegCtrl0, protocol.Ctrl0OutputEnable)
	f.e.Step()
	if !f.pwm.OutputsEnabled() {
		t.Error("CTRL0 bit0 did not enable outputs")
	}
}

func TestEngineRegisterReset(t *testing.T) {
	f := newEngineFixture(t)
	busWrite(f.rf, protocol.LevelAddr(4), 255)
	busWrite(f.rf, protocol.RegCtrl0, protocol.Ctrl0OutputEnable)
	f.e.Step()

	busWrite(f.rf, protocol.RegCtrl0, protocol.Ctrl0ResetRegs|protocol.Ctrl0OutputEnable)
	f.e.Step()

	if got := f.rf.Read(protocol.RegCtrl0); got != 0 {
		t.Errorf("CTRL0 = 0x%02X after reset, want 0", got)
	}
	if got := f.e.Duty(4); got != 0 {
		t.Errorf("channel 4 duty = %v after reset, want 0", got)
	}
	if f.pwm.OutputsEnabled() {
		t.Error("outputs still enabled after register reset")
	}
}

func TestEngineConfirmedReset(t *testing.T) {
	testCases := []struct {
		name       string
		code       uint8
		cpu        int
		bootloader int
	}{
		{"cpu", protocol.ResetCPU, 1, 0},
		{"bootloader", protocol.ResetBootloader, 0, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngineFixture(t)
			busWrite(f.rf, protocol.RegReset, protocol.ResetArm)
			busWrite(f.rf, protocol.RegReset, tc.code)

			f.e.Step()
			if f.rb.resets+f.rb.bootloader != 0 {
				t.Fatal("restarted before the grace period")
			}

			AdvanceTime(ResetGraceUS)
			f.e.Step()
			if f.rb.resets != tc.cpu || f.rb.bootloader != tc.bootloader {
				t.Errorf("resets cpu=%d bootloader=%d, want %d %d",
					f.rb.resets, f.rb.bootloader, tc.cpu, tc.bootloader)
			}
		})
	}
}
