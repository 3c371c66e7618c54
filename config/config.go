// Package config loads rgbworldd's YAML configuration file (SPEC_FULL
// §10), in the style cuemby-warren's CLI uses for its own YAML
// resources (gopkg.in/yaml.v3, plain os.ReadFile + Unmarshal): default
// values are set before unmarshalling so a partial file only overrides
// what it mentions.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Store configures the versioned page store (internal/store).
type Store struct {
	// DataDir holds world.rgbstore and world.tickindex. "~" is expanded
	// against the current user's home directory.
	DataDir string `yaml:"dataDir"`
	// MaxFileSize bounds how large the page file may grow before the
	// operator is expected to run `rgbworldd compact`. Not enforced as
	// a hard cap by internal/store itself, and no cmd/rgbworldd
	// subcommand reads it; compact only logs the directory size.
	MaxFileSize datasize.ByteSize `yaml:"maxFileSize"`
	// CompactKeepEveryN is the default sampling stride passed to
	// Store.Compact when no --keep-every flag is given.
	CompactKeepEveryN int `yaml:"compactKeepEveryN"`
}

// Scheduler configures the tick pipeline (internal/scheduler).
type Scheduler struct {
	// Concurrency is the worker-pool width for one color's cell tasks.
	Concurrency int64 `yaml:"concurrency"`
	// PhaseDeadlineMS is the soft per-phase deadline in milliseconds;
	// overruns are counted in a metric, never cancelled (spec.md §4.6).
	PhaseDeadlineMS int64 `yaml:"phaseDeadlineMs"`
	// MaxCommandsPerTick bounds how many ingress commands Pre drains
	// in one tick (spec.md §4.6 "Admission control").
	MaxCommandsPerTick int `yaml:"maxCommandsPerTick"`
	// CommandsPerSecond and CommandBurst configure the token-bucket
	// limiter in front of command admission.
	CommandsPerSecond float64 `yaml:"commandsPerSecond"`
	CommandBurst      int     `yaml:"commandBurst"`
}

// Network configures the listener that feeds internal/ingress and is
// fed by internal/egress.
type Network struct {
	ListenAddr    string `yaml:"listenAddr"`
	IngressBuffer int    `yaml:"ingressBuffer"`
}

// Logging configures the process-wide zerolog logger.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// Plugins lists dylib paths to load at startup, in order.
type Plugins struct {
	Paths []string `yaml:"paths"`
}

// Config is the root of rgbworldd's YAML file.
type Config struct {
	Store     Store     `yaml:"store"`
	Scheduler Scheduler `yaml:"scheduler"`
	Network   Network   `yaml:"network"`
	Logging   Logging   `yaml:"logging"`
	Plugins   Plugins   `yaml:"plugins"`
}

// Default returns a Config with every field set to a usable value, so
// a caller that loads no file at all (or a file that only overrides a
// few keys) still gets a runnable server.
func Default() Config {
	return Config{
		Store: Store{
			DataDir:           "~/.rgbworld/data",
			MaxFileSize:       512 * datasize.MB,
			CompactKeepEveryN: 10,
		},
		Scheduler: Scheduler{
			Concurrency:        1,
			PhaseDeadlineMS:    16,
			MaxCommandsPerTick: 256,
			CommandsPerSecond:  1000,
			CommandBurst:       256,
		},
		Network: Network{
			ListenAddr:    ":7777",
			IngressBuffer: 4096,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads and parses the YAML file at path, overlaying it onto
// Default(). A missing path is not an error; Load just returns the
// defaults, matching a server that should start with no config file
// present.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("rgbworld/config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("rgbworld/config: parsing %s: %w", path, err)
	}

	cfg.Store.DataDir, err = homedir.Expand(cfg.Store.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("rgbworld/config: expanding data dir %q: %w", cfg.Store.DataDir, err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("rgbworld/config: scheduler.concurrency must be >= 1, got %d", c.Scheduler.Concurrency)
	}
	if c.Scheduler.MaxCommandsPerTick < 0 {
		return fmt.Errorf("rgbworld/config: scheduler.maxCommandsPerTick must be >= 0, got %d", c.Scheduler.MaxCommandsPerTick)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("rgbworld/config: logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("rgbworld/config: logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
