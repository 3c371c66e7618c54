// Command rgbworldd hosts the rgbworld tick runtime: serve runs the
// live scheduler against the versioned store, while compact/revert/
// inspect operate on a store's data directory offline (spec.md §6,
// SPEC_FULL §10's cobra-tree CLI surface, grounded on cuemby-warren's
// cmd/warren/main.go).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edwinsyarief/rgbworld/config"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"

	cfgPath string
	logger  zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rgbworldd: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "rgbworldd",
	Short:   "rgbworld tick-server daemon",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (defaults to config.Default() if unset)")

	cobra.OnInitialize(func() { logger = newLogger(loadConfigOrDie().Logging) })

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(inspectCmd)
}

func loadConfigOrDie() config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgbworldd: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger configures the process-wide zerolog logger from cfg,
// grounded on cuemby-warren's pkg/log.Init (console writer for
// interactive use, plain JSON for production). The result is kept in
// the package-level logger variable, which the subcommands read and
// serve hands to the scheduler as its Logger field.
func newLogger(cfg config.Logging) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}
