package pwmchip

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"tinygo.org/x/drivers"

	"pwmworker/core"
	"pwmworker/protocol"
)

const addr = protocol.DefaultAddress

var (
	_ drivers.I2C = (*i2ctest.Playback)(nil)
	_ drivers.I2C = (*loopback)(nil)
	_ drivers.I2C = (*flakyBus)(nil)
)

// initOps is the bus traffic of Init against a freshly booted device with a
// default shadow.
func initOps() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{protocol.RegDeviceID}, R: []byte{protocol.DeviceID}},
		{Addr: addr, W: []byte{protocol.RegCtrl0, protocol.Ctrl0ResetRegs}},
		{Addr: addr, W: []byte{protocol.RegCtrl0}, R: []byte{0}},
		{Addr: addr, W: make([]byte, 1+protocol.NumChannels+2)},
	}
}

func TestInitAndNoRedundantWrites(t *testing.T) {
	ops := initOps()
	ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{0x03, 10}})
	bus := &i2ctest.Playback{Ops: ops}

	c := New(bus, addr)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	if err := c.Task(); err != nil {
		t.Fatalf("idle Task: %v", err)
	}

	c.Set(3, 10)
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
	// Same value again: no transaction
	c.Set(3, 10)
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}

func TestInitWrongDevice(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{protocol.RegDeviceID}, R: []byte{0x77}},
	}}
	c := New(bus, addr)
	if err := c.Init(); !errors.Is(err, ErrWrongDevice) {
		t.Errorf("Init = %v, want ErrWrongDevice", err)
	}
}

func TestSetGetConsistency(t *testing.T) {
	c := New(&i2ctest.Playback{}, addr)
	for ch := 0; ch < protocol.NumChannels; ch++ {
		c.Set(ch, uint8(ch*10))
	}
	for ch := 0; ch < protocol.NumChannels; ch++ {
		if got := c.Get(ch); got != uint8(ch*10) {
			t.Errorf("Get(%d) = %d, want %d", ch, got, ch*10)
		}
	}

	c.Set(-1, 5)
	c.Set(protocol.NumChannels, 5)
	if got := c.Get(protocol.NumChannels); got != 0 {
		t.Errorf("Get(out of range) = %d, want 0", got)
	}
}

func TestChipRegDirty(t *testing.T) {
	testCases := []struct {
		reg  ChipReg
		want bool
	}{
		{ChipReg{}, false},
		{ChipReg{Local: 1}, true},
		{ChipReg{Local: 7, Chip: 7}, false},
		{ChipReg{Chip: 7}, true},
	}
	for _, tc := range testCases {
		if got := tc.reg.Dirty(); got != tc.want {
			t.Errorf("%+v.Dirty() = %v, want %v", tc.reg, got, tc.want)
		}
	}
}

func TestConfigureBadChannel(t *testing.T) {
	c := New(&i2ctest.Playback{}, addr)
	if err := c.ConfigurePort(24, true, false); !errors.Is(err, ErrBadChannel) {
		t.Errorf("ConfigurePort = %v, want ErrBadChannel", err)
	}
	if err := c.ConfigureFlipperLogic(-1, 10, 10); !errors.Is(err, ErrBadChannel) {
		t.Errorf("ConfigureFlipperLogic = %v, want ErrBadChannel", err)
	}
}

func TestSynchronousConfigWrites(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: addr, W: []byte{0x34, protocol.ModeGamma | protocol.ModeActiveLow}},
		{Addr: addr, W: []byte{0x35, 128, 0xE8, 0x03}},
		{Addr: addr, W: []byte{protocol.RegFreqLo, 0xE8, 0x03}},
	}}
	c := New(bus, addr)
	if err := c.ConfigurePort(5, true, true); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfigureFlipperLogic(5, 128, 1000); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFrequency(1000); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}

type flakyBus struct {
	failAt int
	calls  int
	writes [][]byte
}

func (b *flakyBus) Tx(_ uint16, w, r []byte) error {
	b.calls++
	if b.calls == b.failAt {
		return errors.New("nack")
	}
	b.writes = append(b.writes, append([]byte(nil), w...))
	return nil
}

func TestTaskRetriesAfterBusError(t *testing.T) {
	bus := &flakyBus{failAt: 2}
	c := New(bus, addr)
	c.needInit = false

	c.Set(0, 1)
	c.Set(1, 2)
	c.Set(2, 3)
	err := c.Task()
	if err == nil {
		t.Fatal("Task succeeded through a bus error")
	}
	if len(bus.writes) != 1 {
		t.Fatalf("%d writes before the error, want 1", len(bus.writes))
	}

	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
	if len(bus.writes) != 3 {
		t.Fatalf("%d writes after retry, want 3", len(bus.writes))
	}
	if w := bus.writes[1]; w[0] != 1 || w[1] != 2 {
		t.Errorf("retried write = % X, want 01 02", w)
	}
}

func TestRebootHandshake(t *testing.T) {
	testCases := []struct {
		name       string
		bootloader bool
		code       uint8
	}{
		{"cpu", false, protocol.ResetCPU},
		{"bootloader", true, protocol.ResetBootloader},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := &i2ctest.Playback{Ops: []i2ctest.IO{
				{Addr: addr, W: []byte{protocol.RegReset, protocol.ResetArm}},
				{Addr: addr, W: []byte{protocol.RegReset, tc.code}},
			}}
			c := New(bus, addr)
			c.needInit = false
			c.Reboot(tc.bootloader)
			if err := c.Task(); err != nil {
				t.Fatal(err)
			}
			if !c.NeedsInit() {
				t.Error("chip not marked for re-initialisation")
			}
			if err := bus.Close(); err != nil {
				t.Error(err)
			}
		})
	}
}

// loopback connects the driver to a device register file, running the
// device's register-reset handling after every transaction.
type loopback struct {
	rf   *core.RegisterFile
	down bool // device restarting, every transaction NACKs
}

func (l *loopback) Tx(_ uint16, w, r []byte) error {
	if l.down {
		return errors.New("nack")
	}
	if len(w) > 0 {
		l.rf.Start()
		for _, b := range w {
			l.rf.Receive(b)
		}
		l.rf.Stop()
	}
	if len(r) > 0 {
		for i := range r {
			r[i] = l.rf.Transmit()
		}
		l.rf.Stop()
	}
	if l.rf.ResetRequested() {
		l.rf.ResetDefaults()
	}
	return nil
}

func TestLoopbackRegisterFile(t *testing.T) {
	core.SetTime(0)
	rf := core.NewRegisterFile()
	c := New(&loopback{rf: rf}, addr)

	if err := c.SetFrequency(500); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfigureFlipperLogic(5, 128, 1000); err != nil {
		t.Fatal(err)
	}
	c.Set(5, 255)
	c.EnableOutputs(true)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}

	if got := rf.Read(protocol.LevelAddr(5)); got != 255 {
		t.Errorf("level 5 = %d, want 255", got)
	}
	if got := rf.Read(protocol.RegCtrl0); got != protocol.Ctrl0OutputEnable {
		t.Errorf("CTRL0 = 0x%02X, want outputs enabled only", got)
	}
	if f, _ := rf.AtomicRead16(protocol.RegFreqLo); f != 500 {
		t.Errorf("frequency = %d, want 500", f)
	}
	regs, _ := rf.ReadChannel(5)
	if regs.Limit != 128 || regs.TimeoutMS != 1000 {
		t.Errorf("channel 5 = %+v, want limit 128 timeout 1000", regs)
	}

	restarted, err := c.CheckReset()
	if err != nil || restarted {
		t.Errorf("CheckReset = %v, %v; want false, nil", restarted, err)
	}

	c.Set(5, 64)
	c.EnableOutputs(false)
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
	if got := rf.Read(protocol.LevelAddr(5)); got != 64 {
		t.Errorf("level 5 = %d, want 64", got)
	}
	if got := rf.Read(protocol.RegCtrl0); got != 0 {
		t.Errorf("CTRL0 = 0x%02X, want 0", got)
	}

	c.Reboot(false)
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
	if got := rf.HandshakeState(); got != core.HandshakeConfirmed {
		t.Errorf("handshake = %v, want confirmed", got)
	}
}

func TestCheckResetReinitialises(t *testing.T) {
	rf := core.NewRegisterFile()
	c := New(&loopback{rf: rf}, addr)
	c.Set(0, 42)

	restarted, err := c.CheckReset()
	if err != nil {
		t.Fatal(err)
	}
	if !restarted {
		t.Fatal("hardware-reset flag not detected after power-on")
	}
	if got := rf.Read(protocol.RegCtrl0); got&protocol.Ctrl0HardReset != 0 {
		t.Error("hardware-reset flag still set after re-init")
	}
	if got := rf.Read(protocol.LevelAddr(0)); got != 42 {
		t.Errorf("level 0 = %d, want 42 after re-init", got)
	}
}

func TestAttachAdoptsDeviceState(t *testing.T) {
	rf := core.NewRegisterFile()
	lo, hi := protocol.PutUint16(2500)
	busWriteAll(rf, protocol.LevelAddr(7), 99)
	busWriteAll(rf, protocol.RegCtrl0, protocol.Ctrl0OutputEnable, 0, lo, hi)
	busWriteAll(rf, protocol.ConfigAddr(23), protocol.ModeGamma, 10, 0x20, 0x00)

	c := New(&loopback{rf: rf}, addr)
	if err := c.Attach(); err != nil {
		t.Fatal(err)
	}
	if c.NeedsInit() {
		t.Error("attached chip still needs init")
	}
	if c.Get(7) != 99 || !c.OutputsEnabled() || c.Frequency() != 2500 {
		t.Errorf("shadow: level7=%d enabled=%v freq=%d", c.Get(7), c.OutputsEnabled(), c.Frequency())
	}
	gamma, activeLow, limit, timeout := c.Port(23)
	if !gamma || activeLow || limit != 10 || timeout != 32 {
		t.Errorf("Port(23) = %v %v %d %d", gamma, activeLow, limit, timeout)
	}

	// Nothing is dirty after attaching
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
}

func busWriteAll(rf *core.RegisterFile, reg uint8, data ...byte) {
	rf.Start()
	rf.Receive(reg)
	for _, b := range data {
		rf.Receive(b)
	}
	rf.Stop()
}

func TestRebootWaitsForRestart(t *testing.T) {
	core.SetTime(0)
	bus := &loopback{rf: core.NewRegisterFile()}
	c := New(bus, addr)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	c.Set(3, 200)
	c.EnableOutputs(true)
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}

	c.Reboot(false)
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}

	// Old firmware still answering inside its grace period
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
	if !c.NeedsInit() || !c.Rebooting() {
		t.Fatalf("NeedsInit=%v Rebooting=%v before the restart, want both", c.NeedsInit(), c.Rebooting())
	}

	// Restarting: the bus NACKs, which is not an error while rebooting
	bus.down = true
	if err := c.Task(); err != nil {
		t.Fatalf("Task while restarting: %v", err)
	}

	// Fresh firmware with power-on registers
	bus.down = false
	bus.rf = core.NewRegisterFile()
	if err := c.Task(); err != nil {
		t.Fatal(err)
	}
	if c.NeedsInit() || c.Rebooting() {
		t.Errorf("NeedsInit=%v Rebooting=%v after restart, want neither", c.NeedsInit(), c.Rebooting())
	}
	if got := bus.rf.Read(protocol.LevelAddr(3)); got != 200 {
		t.Errorf("level 3 = %d after restart, want 200", got)
	}
	if got := bus.rf.Read(protocol.RegCtrl0); got != protocol.Ctrl0OutputEnable {
		t.Errorf("CTRL0 = 0x%02X after restart, want outputs enabled only", got)
	}
}
