// Package config loads the microfirst device configuration.
//
// The configuration is one YAML file, by default at
// os.UserConfigDir()/microfirst/config.yaml:
//
//	server: "192.168.1.100:5000"
//	clips_dir: "./expressions"
//	display:
//	  width: 240
//	  height: 320
//	  lines_per_chunk: 20
//	audio:
//	  max_record_ms: 3000
//	  min_record_ms: 500
//	  idle_timeout_ms: 30000
//	sync:
//	  bucket: "microfirst-clips"
//	  prefix: "expressions/"
//	  region: "us-east-1"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

const appDir = "microfirst"

// Config is the device configuration.
type Config struct {
	// Server is the host:port of the voice processing server.
	Server string `yaml:"server"`

	// ClipsDir is the root directory holding expression clips.
	ClipsDir string `yaml:"clips_dir"`

	Display DisplayConfig `yaml:"display"`
	Audio   AudioConfig   `yaml:"audio"`
	Sync    SyncConfig    `yaml:"sync"`
}

// DisplayConfig describes the attached panel.
type DisplayConfig struct {
	Width         int `yaml:"width"`
	Height        int `yaml:"height"`
	LinesPerChunk int `yaml:"lines_per_chunk"`
}

// AudioConfig tunes the capture and interaction timing.
type AudioConfig struct {
	MaxRecordMs   int `yaml:"max_record_ms"`
	MinRecordMs   int `yaml:"min_record_ms"`
	IdleTimeoutMs int `yaml:"idle_timeout_ms"`
}

func (a AudioConfig) MaxRecord() time.Duration {
	return time.Duration(a.MaxRecordMs) * time.Millisecond
}

func (a AudioConfig) MinRecord() time.Duration {
	return time.Duration(a.MinRecordMs) * time.Millisecond
}

func (a AudioConfig) IdleTimeout() time.Duration {
	return time.Duration(a.IdleTimeoutMs) * time.Millisecond
}

// SyncConfig points 'clips sync' at an S3 bucket.
type SyncConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   "127.0.0.1:5000",
		ClipsDir: "expressions",
		Display: DisplayConfig{
			Width:         240,
			Height:        320,
			LinesPerChunk: 20,
		},
		Audio: AudioConfig{
			MaxRecordMs:   3000,
			MinRecordMs:   500,
			IdleTimeoutMs: 30000,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, "config.yaml"), nil
}

// Load reads the configuration from path, or from the default
// location when path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating directories as
// needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
