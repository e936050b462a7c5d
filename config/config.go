package config

import (
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable consulted when no config path is given.
const EnvConfigPath = "ANVIL2VOXEL_CONFIG"

// Config is the root of the YAML configuration.
type Config struct {
	World       string `yaml:"world"`
	Output      string `yaml:"output"`
	Registry    string `yaml:"registry"`
	Checkpoint  string `yaml:"checkpoint"`
	Workers     int    `yaml:"workers"`
	Dimension   string `yaml:"dimension"`
	MaxSections int    `yaml:"max_sections"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	RetryFailed bool   `yaml:"retry_failed"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Output:      "out",
		Registry:    filepath.Join("assets", "blockstates.txt"),
		MaxSections: 24,
		LogLevel:    "info",
	}
}

// Load reads a YAML file over the defaults. If path is empty the
// ANVIL2VOXEL_CONFIG variable is tried; with neither set the defaults are
// returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WorkerCount resolves the configured worker count, defaulting to one worker
// per CPU.
func (c *Config) WorkerCount() int {
	if c.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

// CheckpointPath resolves where resume state is kept.
func (c *Config) CheckpointPath() string {
	if c.Checkpoint != "" {
		return c.Checkpoint
	}
	return filepath.Join(c.Output, "progress.db")
}
