package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/devstream/errors"
)

// Environment overrides for device credentials, so secrets can stay out of
// configuration files
const (
	envDeviceUsername   = "DEVSTREAM_DEVICE_USERNAME"
	envDevicePassphrase = "DEVSTREAM_DEVICE_PASSPHRASE"
)

const defaultPollInterval = 60

// Load reads, parses, validates, and defaults a configuration file. The
// format follows the file extension: .yaml/.yml or .json.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, errors.WrapConfig(err, "config", "Load", "file read")
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.WrapConfig(err, "config", "Load", "yaml parsing")
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, errors.WrapConfig(err, "config", "Load", "json parsing")
		}
	default:
		return nil, errors.WrapConfig(
			fmt.Errorf("unsupported config extension %q", filepath.Ext(path)),
			"config", "Load", "format detection")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse validates a raw JSON configuration document, as received from the
// KV bucket on runtime updates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapConfig(err, "config", "Parse", "json parsing")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envDeviceUsername); v != "" {
		cfg.Device.Username = v
	}
	if v := os.Getenv(envDevicePassphrase); v != "" {
		cfg.Device.Passphrase = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Poll.IntervalSeconds == 0 {
		cfg.Poll.IntervalSeconds = defaultPollInterval
	}
	if cfg.NATS.Name == "" {
		cfg.NATS.Name = "devstream"
	}
	if cfg.Metrics.Enable && cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}
