package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for.
const DefaultConfigFile = "scanpipe.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile overlays the YAML file at path onto cfg.
// Keys absent from the file keep the values already in cfg, so callers
// normally pass the result of NewConfig.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigNotFound
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ConfigFilePath = path
	return nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. configPath, if specified
// 2. scanpipe.yaml in the current directory
// 3. scanpipe.yaml in the XDG config directory
// 4. .scanpipe.yaml in the user's home directory
//
// Returns an empty string if nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), DefaultConfigFile))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "."+DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load builds a Config from defaults and the configuration file, then
// decrypts enc: values with the passphrase from SCANPIPE_SECRET_KEY.
// An explicitly requested file that does not exist is an error; a missing
// file found by discovery is not.
func Load(configPath string) (*Config, error) {
	cfg := NewConfig()

	path := FindConfigFile(configPath)
	switch {
	case path != "":
		if err := LoadConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case configPath != "":
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	}

	if err := cfg.ResolveSecrets(os.Getenv(SecretKeyEnv)); err != nil {
		return nil, err
	}
	return cfg, nil
}
