// Package config holds the service configuration and its YAML file format.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the service configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir holds the log files offered for loading.
	DataDir string `yaml:"data_dir"`

	// StoreDir is the badger directory for uploaded and imported logs.
	// Empty disables the store.
	StoreDir string `yaml:"store_dir"`

	// Watch enables the data directory watcher.
	Watch bool `yaml:"watch"`

	// CacheSize is the number of subgraph results kept in memory.
	CacheSize int `yaml:"cache_size"`

	// MaxUploadBytes limits uploaded and loaded payloads. Zero means
	// unlimited.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`

	// TraceExporter is one of none, stdout, otlp.
	TraceExporter string `yaml:"trace_exporter"`

	// OTLPEndpoint is the collector address used by the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:     "0.0.0.0:3000",
		DataDir:        "./data/",
		StoreDir:       "",
		Watch:          false,
		CacheSize:      128,
		MaxUploadBytes: 0,
		LogLevel:       "info",
		MetricsEnabled: true,
		CORSOrigins:    []string{"*"},
		TraceExporter:  "none",
		OTLPEndpoint:   "localhost:4317",
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listen_addr %q: %v", c.ListenAddr, err))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("cache_size must be positive, got %d", c.CacheSize))
	}
	if c.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must not be negative, got %d", c.MaxUploadBytes))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.TraceExporter {
	case "", "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("trace_exporter %q: want none, stdout or otlp", c.TraceExporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %v", name, err)
	}
	return level, nil
}
