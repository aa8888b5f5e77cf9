// Package config loads the ftpd configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Passive  PassiveConfig  `yaml:"passive"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LogConfig      `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Transfer TransferConfig `yaml:"transfer"`
}

// ServerConfig holds control connection settings.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	WelcomeMessage  string        `yaml:"welcomeMessage"`
	SystemName      string        `yaml:"systemName"`
	MaxConnections  int           `yaml:"maxConnections"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PassiveConfig holds PASV settings.
type PassiveConfig struct {
	PublicHost string `yaml:"publicHost"`
	MinPort    int    `yaml:"minPort"`
	MaxPort    int    `yaml:"maxPort"`
}

// StorageConfig selects the vfs location served as "/".
type StorageConfig struct {
	Root     string `yaml:"root"`
	ReadOnly bool   `yaml:"readOnly"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the stdout OpenTelemetry exporter.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// TransferConfig holds data connection settings.
type TransferConfig struct {
	DataTimeout    time.Duration `yaml:"dataTimeout"`
	BandwidthLimit int64         `yaml:"bandwidthLimit"`
	Log            string        `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":2121",
			SystemName:      "UNIX Type: L8",
			ShutdownTimeout: 30 * time.Second,
		},
		Passive: PassiveConfig{
			MinPort: 49152,
			MaxPort: 65535,
		},
		Storage: StorageConfig{
			Root: "file:///srv/ftp/",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Interval: time.Minute,
		},
	}
}

// Load reads the YAML file at path on top of Default and validates the
// result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of Default and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
