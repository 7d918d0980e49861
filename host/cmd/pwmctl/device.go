package main

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"pwmworker/host/config"
	"pwmworker/host/pwmchip"
)

const busSpeed = 400 * physic.KiloHertz

// session is an open bus plus the chip on it
type session struct {
	bus  i2c.BusCloser
	chip *pwmchip.Chip
}

func openChip(cfg *config.Config) (*session, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	addr, err := config.ParseAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", cfg.Bus, err)
	}
	if err := bus.SetSpeed(busSpeed); err != nil {
		// Not every adapter lets userspace pick the clock
		slog.Debug("bus speed unchanged", "error", err)
	}
	slog.Debug("bus open", "bus", bus.String(), "addr", fmt.Sprintf("0x%02X", addr))
	return &session{bus: bus, chip: pwmchip.New(bus, addr)}, nil
}

func (s *session) Close() error {
	return s.bus.Close()
}
