package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ConfigDir is the directory name under ~/.config
	ConfigDir = "triage"
	// ConfigFile is the config file name
	ConfigFile = "config.json"
)

// FileSystem abstracts file operations for testability
type FileSystem interface {
	UserHomeDir() (string, error)
	ReadFile(path string) ([]byte, error)
}

// ConfigFileReader implements FileSystem using the real OS for config loading
type ConfigFileReader struct{}

func (ConfigFileReader) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

func (ConfigFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader handles configuration loading with injected dependencies
type Loader struct {
	fs FileSystem
}

// NewLoader creates a production Loader using the real filesystem
func NewLoader() *Loader {
	return &Loader{fs: ConfigFileReader{}}
}

// NewLoaderWithFS creates a Loader with a custom filesystem (for testing)
func NewLoaderWithFS(fs FileSystem) *Loader {
	return &Loader{fs: fs}
}

// Load reads ~/.config/triage/config.json and merges it over the defaults.
// A missing dotfile or home directory yields the defaults.
func (l *Loader) Load() (*Config, error) {
	homeDir, err := l.fs.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	return l.load(filepath.Join(homeDir, ".config", ConfigDir, ConfigFile), true)
}

// LoadFile reads an explicit config path. Unlike Load, a missing file is an error.
func (l *Loader) LoadFile(path string) (*Config, error) {
	return l.load(path, false)
}

func (l *Loader) load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := l.fs.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Present keys overwrite defaults (even if zero); missing keys keep them.
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is a convenience function using the default loader
func Load() (*Config, error) {
	return NewLoader().Load()
}
