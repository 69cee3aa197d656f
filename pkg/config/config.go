// Package config loads the small YAML document cmd/cmap reads at startup:
// log level/format, the metrics bind address, and the diskcache database file.
// The core library (pkg/cmap and below) takes no configuration of its own —
// this package exists purely for the CLI harness, following the same
// gopkg.in/yaml.v3 unmarshal-into-a-struct style the teacher uses for its
// `apply` resource documents.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/cmap/pkg/log"
)

// Config is the CLI's on-disk configuration document.
type Config struct {
	LogLevel    log.Level `yaml:"logLevel"`
	LogJSON     bool      `yaml:"logJSON"`
	MetricsAddr string    `yaml:"metricsAddr"`
	CachePath   string    `yaml:"cachePath"`
}

// Default returns the configuration the CLI uses when no file is given.
func Default() Config {
	return Config{
		LogLevel:    log.InfoLevel,
		LogJSON:     false,
		MetricsAddr: "127.0.0.1:9090",
		CachePath:   "./cmap-cache.db",
	}
}

// Load reads and parses a YAML config file, filling in defaults for any
// field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: failed to parse %q: %w", path, err)
	}
	return cfg, nil
}
