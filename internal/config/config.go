package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultMessageLimit is how many recent messages a listing fetches when
// the config does not say otherwise.
const DefaultMessageLimit = 50

// Config represents the global ~/.telecord/config.toml.
type Config struct {
	DefaultAccount string `toml:"default_account"`
	MessageLimit   int    `toml:"message_limit"`
	DataDir        string `toml:"data_dir"`
}

// Load reads config from the given path. A missing file yields the zero
// config with defaults applied, not an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return withDefaults(&cfg), nil
		}
		return nil, err
	}
	return withDefaults(&cfg), nil
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

func withDefaults(cfg *Config) *Config {
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = DefaultMessageLimit
	}
	return cfg
}
