package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAMLConfig builds a value with fn and overlays the YAML file at
// configPath. An empty path or a missing file leaves the defaults untouched;
// an unreadable or malformed file is an error.
func LoadYAMLConfig[T any](configPath string, fn func() *T) (*T, error) {
	config := fn()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}

	yamlFile, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("read config %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", configPath, err)
	}

	return config, nil
}
