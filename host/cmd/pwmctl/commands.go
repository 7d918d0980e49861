package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"pwmworker/host/config"
	"pwmworker/host/pwmchip"
	"pwmworker/host/serial"
	"pwmworker/protocol"
)

func newApplyCmd(opts *options) *cobra.Command {
	var freq uint16
	var enable bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reset the board and apply the ports file",
		Long: `Initialises the board (register reset, ID check), then configures every
port listed in the config file, sets the PWM frequency and initial levels, and
finally enables the outputs if requested.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("frequency") {
				cfg.Frequency = freq
			}
			if cmd.Flags().Changed("enable") {
				cfg.Enable = enable
			}

			s, err := openChip(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := applyConfig(s.chip, cfg); err != nil {
				slog.Error("apply failed", "error", err)
				return err
			}
			slog.Info("configuration applied", "ports", len(cfg.Ports),
				"frequency", cfg.Frequency, "enabled", cfg.Enable)
			return nil
		},
	}
	cmd.Flags().Uint16VarP(&freq, "frequency", "f", protocol.DefaultFreq, "PWM frequency in Hz")
	cmd.Flags().BoolVar(&enable, "enable", false, "enable outputs after configuring")
	return cmd
}

// applyConfig brings a chip to the state described by cfg
func applyConfig(chip *pwmchip.Chip, cfg *config.Config) error {
	if err := chip.Init(); err != nil {
		return err
	}
	if err := chip.SetFrequency(cfg.Frequency); err != nil {
		return err
	}
	for _, p := range cfg.Ports {
		if err := chip.ConfigurePort(p.Channel, p.Gamma, p.ActiveLow); err != nil {
			return err
		}
		if err := chip.ConfigureFlipperLogic(p.Channel, p.LimitLevel(), p.TimeoutMS); err != nil {
			return err
		}
		chip.Set(p.Channel, p.Level)
		slog.Debug("port configured", "channel", p.Channel, "name", p.Name,
			"gamma", p.Gamma, "active_low", p.ActiveLow, "limit", p.LimitLevel(), "timeout_ms", p.TimeoutMS)
	}
	chip.EnableOutputs(cfg.Enable)
	return chip.Task()
}

func newSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set CHANNEL LEVEL",
		Short: "Set one channel level on a running board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			level, err := strconv.ParseUint(args[1], 0, 8)
			if err != nil {
				return fmt.Errorf("bad level %q", args[1])
			}
			if ch < 0 || ch >= protocol.NumChannels {
				return pwmchip.ErrBadChannel
			}

			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			s, err := openChip(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.chip.Attach(); err != nil {
				return err
			}
			s.chip.Set(ch, uint8(level))
			if err := s.chip.Task(); err != nil {
				return err
			}
			slog.Info("level set", "channel", ch, "level", level)
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the board's registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			s, err := openChip(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			chip := s.chip
			if err := chip.Attach(); err != nil {
				return err
			}
			version, err := chip.Version()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s firmware v%d, %d Hz, outputs enabled: %v\n",
				chip, version, chip.Frequency(), chip.OutputsEnabled())
			fmt.Fprintln(out, "CH  LEVEL  GAMMA  ACTLOW  LIMIT  TIMEOUT")
			for ch := 0; ch < protocol.NumChannels; ch++ {
				gamma, activeLow, limit, timeout := chip.Port(ch)
				fmt.Fprintf(out, "%2d  %5d  %5v  %6v  %5d  %5dms\n",
					ch, chip.Get(ch), gamma, activeLow, limit, timeout)
			}
			return nil
		},
	}
}

func newRebootCmd(opts *options) *cobra.Command {
	var bootloader bool

	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Restart the board, optionally into the USB bootloader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			s, err := openChip(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.chip.Attach(); err != nil {
				return err
			}
			s.chip.Reboot(bootloader)
			if err := s.chip.Task(); err != nil {
				return err
			}
			slog.Info("reboot requested", "bootloader", bootloader)
			return nil
		},
	}
	cmd.Flags().BoolVar(&bootloader, "bootloader", false, "reboot into the USB mass-storage bootloader")
	return cmd
}

func newMonitorCmd(opts *options) *cobra.Command {
	var device string
	var baud int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream the board's console log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") && cfg.Console != "" {
				device = cfg.Console
			}

			scfg := serial.DefaultConfig(device)
			scfg.Baud = baud
			port, err := serial.Open(scfg)
			if err != nil {
				return err
			}
			defer port.Close()
			if err := port.Flush(); err != nil {
				slog.Debug("flush failed", "error", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			logger := slog.Default().With("device", device)
			logger.Info("monitoring console")
			err = serial.Tail(ctx, port, func(l serial.Line) { logLine(logger, l) })
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&device, "port", "p", "/dev/ttyACM0", "console serial device")
	cmd.Flags().IntVar(&baud, "baud", 115200, "baud rate (ignored for USB CDC)")
	return cmd
}

// logLine re-emits a device console line at the matching host log level
func logLine(logger *slog.Logger, l serial.Line) {
	switch l.Tag {
	case "error":
		logger.Error(l.Text)
	case "warn":
		logger.Warn(l.Text)
	case "info", "":
		logger.Info(l.Text)
	default:
		logger.Info(l.Text, "tag", l.Tag)
	}
}
