// Command pwmctl configures and inspects PWM worker boards from a Linux host.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pwmworker/host/config"
)

// options shared by every subcommand
type options struct {
	configFile string
	bus        string
	address    string
	logLevel   string
	logJSON    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pwmctl",
		Short:         "Control a 24-channel I2C PWM worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			slog.SetDefault(newLogger(opts.logLevel, opts.logJSON))
		},
	}
	f := root.PersistentFlags()
	f.StringVarP(&opts.configFile, "config", "c", "ports.toml", "ports configuration file")
	f.StringVar(&opts.bus, "bus", "", "I2C bus name (default: first bus found)")
	f.StringVarP(&opts.address, "addr", "a", "", "7-bit device address (default from config, 0x30)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		newApplyCmd(opts),
		newSetCmd(opts),
		newStatusCmd(opts),
		newRebootCmd(opts),
		newMonitorCmd(opts),
	)
	return root
}

func newLogger(level string, json bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hopts))
}

// loadConfig reads the ports file and lets explicitly set flags win over it
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "bus":
			cfg.Bus = opts.bus
		case "addr":
			cfg.Address = opts.address
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseChannel(s string) (int, error) {
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad channel %q", s)
	}
	return ch, nil
}
