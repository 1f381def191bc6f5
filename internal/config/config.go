// Package config provides unified configuration loading for abmsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all simulation run settings.
type Config struct {
	// Simulation contains the population and round parameters.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// API contains settings for the observation HTTP server.
	API APIConfig `json:"api" yaml:"api"`

	// Checkpoint contains settings for saving and resuming state.
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`

	// Logging contains log output settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig holds the parameters a run is built from.
type SimulationConfig struct {
	// Population is the number of agents.
	Population int `json:"population" yaml:"population"`

	// Neighbors is the number of agents each agent reads from. Must stay
	// below population-1 so sampling has room.
	Neighbors int `json:"neighbors" yaml:"neighbors"`

	// MaxInitial bounds initial values: draws come from [-max, +max].
	MaxInitial int `json:"max_initial" yaml:"max_initial"`

	// Rounds is the number of synchronous rounds to run.
	Rounds int `json:"rounds" yaml:"rounds"`

	// Workers caps how many update tasks run at once.
	Workers int `json:"workers" yaml:"workers"`

	// TaskDelayMS artificially slows every update task, demonstrating
	// that scheduling cannot change results. Milliseconds; 0 disables.
	TaskDelayMS int `json:"task_delay_ms" yaml:"task_delay_ms"`

	// SpecialFactor scales every pooled update.
	SpecialFactor float64 `json:"special_factor" yaml:"special_factor"`

	// Seed fixes the run's randomness. 0 draws a fresh seed.
	Seed int64 `json:"seed" yaml:"seed"`

	// Init selects the initial-value generator: "uniform" or "simplex".
	Init string `json:"init" yaml:"init"`
}

// TaskDelay returns the per-task delay as a duration.
func (s SimulationConfig) TaskDelay() time.Duration {
	return time.Duration(s.TaskDelayMS) * time.Millisecond
}

// APIConfig configures the observation server.
type APIConfig struct {
	// Enabled starts the HTTP/websocket server when true.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr" yaml:"addr"`
}

// CheckpointConfig configures state persistence.
type CheckpointConfig struct {
	// Path is the sqlite file holding the latest committed state.
	// Empty disables checkpointing.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level sets verbosity: "debug", "info" (default), "warn", or "error".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with the stock parameter set.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Population:    20,
			Neighbors:     3,
			MaxInitial:    50,
			Rounds:        30,
			Workers:       15,
			TaskDelayMS:   250,
			SpecialFactor: 3,
			Seed:          0,
			Init:          "uniform",
		},
		API: APIConfig{
			Enabled: false,
			Addr:    ":8080",
		},
		Checkpoint: CheckpointConfig{
			Path: "data/abmsim.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path and environment variables. An empty
// path falls back to abmsim.yaml in the working directory when present,
// defaults otherwise. Order: defaults -> file -> environment.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if _, err := os.Stat("abmsim.yaml"); err == nil {
			path = "abmsim.yaml"
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Validate checks that the configuration describes a runnable simulation.
func (c *Config) Validate() error {
	s := c.Simulation
	if s.Population < 1 {
		return fmt.Errorf("population must be at least 1, got %d", s.Population)
	}
	if s.Neighbors < 0 {
		return fmt.Errorf("neighbors must be non-negative, got %d", s.Neighbors)
	}
	if s.Neighbors >= s.Population-1 {
		return fmt.Errorf("neighbors must be below population-1, got %d with population %d", s.Neighbors, s.Population)
	}
	if s.MaxInitial < 0 {
		return fmt.Errorf("max_initial must be non-negative, got %d", s.MaxInitial)
	}
	if s.Rounds < 0 {
		return fmt.Errorf("rounds must be non-negative, got %d", s.Rounds)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.TaskDelayMS < 0 {
		return fmt.Errorf("task_delay_ms must be non-negative, got %d", s.TaskDelayMS)
	}

	validInits := map[string]bool{"uniform": true, "simplex": true}
	if !validInits[s.Init] {
		return fmt.Errorf("invalid init: %s (valid: uniform, simplex)", s.Init)
	}

	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api.addr must be set when the api is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies ABMSIM_* environment variables to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("ABMSIM_POPULATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Population = n
		}
	}
	if v := os.Getenv("ABMSIM_NEIGHBORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Neighbors = n
		}
	}
	if v := os.Getenv("ABMSIM_MAX_INITIAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.MaxInitial = n
		}
	}
	if v := os.Getenv("ABMSIM_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Rounds = n
		}
	}
	if v := os.Getenv("ABMSIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}
	if v := os.Getenv("ABMSIM_TASK_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.TaskDelayMS = n
		}
	}
	if v := os.Getenv("ABMSIM_SPECIAL_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.SpecialFactor = f
		}
	}
	if v := os.Getenv("ABMSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}
	if v := os.Getenv("ABMSIM_INIT"); v != "" {
		config.Simulation.Init = v
	}

	if v := os.Getenv("ABMSIM_API_ENABLED"); v != "" {
		config.API.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ABMSIM_API_ADDR"); v != "" {
		config.API.Addr = v
	}

	if v := os.Getenv("ABMSIM_CHECKPOINT"); v != "" {
		config.Checkpoint.Path = v
	}

	if v := os.Getenv("ABMSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
