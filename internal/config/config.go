package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the optional configuration file looked up by LoadOptional.
const FileName = "arcgis.yaml"

// Config represents the optional arcgis.yaml configuration.
type Config struct {
	APIKey         string               `yaml:"api_key,omitempty"`
	License        string               `yaml:"license,omitempty"`
	Codec          string               `yaml:"codec,omitempty"`
	Log            LogConfig            `yaml:"log"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	FeatureService FeatureServiceConfig `yaml:"feature_service"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig contains the metrics listener settings.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// FeatureServiceConfig contains feature service query settings.
type FeatureServiceConfig struct {
	Timeout string `yaml:"timeout,omitempty"`
	Workers int    `yaml:"workers,omitempty"`
}

// Resolved contains resolved configuration values.
type Resolved struct {
	APIKey       string
	License      string
	Codec        string
	LogLevel     slog.Level
	LogFormat    string
	MetricsAddr  string
	QueryTimeout time.Duration
	QueryWorkers int
}

// LoadOptional reads arcgis.yaml from dir if present.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// LoadFile reads the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve loads arcgis.yaml (if present) and resolves defaults.
func Resolve(dir string) (*Resolved, error) {
	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	return cfg.Resolve()
}

// Resolve validates cfg and fills in defaults.
func (cfg *Config) Resolve() (*Resolved, error) {
	codec := strings.ToLower(strings.TrimSpace(cfg.Codec))
	switch codec {
	case "":
		codec = "json"
	case "json", "proto":
	default:
		return nil, fmt.Errorf("codec must be json or proto (got %q)", cfg.Codec)
	}

	var level slog.Level
	if s := strings.TrimSpace(cfg.Log.Level); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("invalid log.level %q: %w", s, err)
		}
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	switch format {
	case "":
		format = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("log.format must be text or json (got %q)", cfg.Log.Format)
	}

	timeout := 30 * time.Second
	if s := strings.TrimSpace(cfg.FeatureService.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid feature_service.timeout %q", s)
		}
		timeout = d
	}

	workers := cfg.FeatureService.Workers
	switch {
	case workers < 0:
		return nil, fmt.Errorf("feature_service.workers cannot be negative (got %d)", workers)
	case workers == 0:
		workers = 8
	}

	return &Resolved{
		APIKey:       strings.TrimSpace(cfg.APIKey),
		License:      strings.TrimSpace(cfg.License),
		Codec:        codec,
		LogLevel:     level,
		LogFormat:    format,
		MetricsAddr:  strings.TrimSpace(cfg.Metrics.Addr),
		QueryTimeout: timeout,
		QueryWorkers: workers,
	}, nil
}
