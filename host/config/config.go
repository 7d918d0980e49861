// Package config loads the per-board port setup applied by pwmctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"pwmworker/protocol"
)

// Port configures one output channel
type Port struct {
	Channel   int    `toml:"channel"`
	Name      string `toml:"name,omitempty"`
	Gamma     bool   `toml:"gamma"`
	ActiveLow bool   `toml:"active_low"`
	// Limit is the level the channel is throttled to after TimeoutMS above it.
	// Omitted means no limit.
	Limit     *uint8 `toml:"limit,omitempty"`
	TimeoutMS uint16 `toml:"timeout_ms"`
	Level     uint8  `toml:"level"`
}

// LimitLevel returns the limit register value, 0xFF when no limit is set
func (p Port) LimitLevel() uint8 {
	if p.Limit == nil {
		return protocol.LimitOff
	}
	return *p.Limit
}

// Config is the complete ports file
type Config struct {
	Bus       string `toml:"bus"`
	Address   string `toml:"address"`
	Frequency uint16 `toml:"frequency"`
	Enable    bool   `toml:"enable"`
	Console   string `toml:"console,omitempty"`
	Ports     []Port `toml:"port"`
}

// Default returns the settings used when no file is given
func Default() *Config {
	return &Config{
		Address:   "0x" + strconv.FormatUint(protocol.DefaultAddress, 16),
		Frequency: protocol.DefaultFreq,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ports config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ports config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal ports config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ports config: %w", err)
	}
	return nil
}

// Validate checks channel numbers and the address
func (c *Config) Validate() error {
	if _, err := ParseAddress(c.Address); err != nil {
		return err
	}
	if c.Frequency == 0 {
		return errors.New("config: frequency must be non-zero")
	}
	seen := make(map[int]bool)
	for _, p := range c.Ports {
		if p.Channel < 0 || p.Channel >= protocol.NumChannels {
			return fmt.Errorf("config: port %q: channel %d out of range", p.Name, p.Channel)
		}
		if seen[p.Channel] {
			return fmt.Errorf("config: channel %d configured twice", p.Channel)
		}
		seen[p.Channel] = true
	}
	return nil
}

// ParseAddress accepts a 7-bit address in decimal or 0x-prefixed hex
func ParseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("config: bad address %q: %w", s, err)
	}
	if v > 0x7F {
		return 0, fmt.Errorf("config: address 0x%X is not 7-bit", v)
	}
	return uint16(v), nil
}
