// Package config loads fetcher configuration from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/locie/comepos-fetcher/internal/core"
)

// Config holds everything the CLI needs to talk to Vesta and the local
// store.
type Config struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	BaseURL   string `yaml:"base_url"`
	StorePath string `yaml:"store"`
	MaxRows   int    `yaml:"max_rows"`
}

// Load reads configuration with the following precedence, lowest first:
// built-in defaults, the YAML config file, environment variables (a .env
// file is honoured when present).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		BaseURL:   core.DefaultBaseURL,
		StorePath: core.DefaultStorePath(),
		MaxRows:   core.MaxRowsPerRequest,
	}

	if err := loadFile(cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv(core.UsernameEnvVar); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(core.PasswordEnvVar); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(core.BaseURLEnvVar); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(core.StoreEnvVar); v != "" {
		cfg.StorePath = v
	}

	return cfg, nil
}

// loadFile merges the YAML config file into cfg. The file is looked up at
// $COMEPOS_CONFIG, falling back to <user config dir>/comepos_fetcher/
// config.yaml. A missing file is not an error.
func loadFile(cfg *Config) error {
	path := os.Getenv(core.ConfigEnvVar)
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(dir, core.AppName, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Validate checks that credentials are present.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("missing credentials: set %s and %s", core.UsernameEnvVar, core.PasswordEnvVar)
	}
	return nil
}
