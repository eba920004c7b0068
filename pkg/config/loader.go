package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the config file at path, expands environment references, merges
// the result over the defaults and validates. A missing file is not an
// error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("No config file, using defaults", "path", path)
	case err != nil:
		return nil, &LoadError{File: path, Err: err}
	default:
		if err := yaml.Unmarshal(ExpandEnv(raw), cfg); err != nil {
			return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %w", ErrInvalidYAML, err)}
		}
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv loads a .env file into the process environment when present.
// Existing variables win.
func LoadDotenv(path string) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to load .env file", "path", path, "error", err)
		}
		return
	}
	slog.Info("Loaded environment file", "path", path)
}
