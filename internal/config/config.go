package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.maxd/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	Language       string `toml:"language"`
	// RuntimeCommand is the embedded runtime host binary. Empty means the
	// bundled default on PATH.
	RuntimeCommand string `toml:"runtime_command"`
}

// Load reads config from the given path. Returns an error if the file is
// missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Language == "" {
		cfg.Language = "ru"
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
