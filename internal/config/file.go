package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML defaults file: a flat mapping of environment
// variable names to values.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	out := make(map[string]string, len(raw))
	for key, value := range raw {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch v := value.(type) {
		case nil:
			out[key] = ""
		case string:
			out[key] = v
		case map[string]interface{}, []interface{}:
			return nil, fmt.Errorf("config key %s: nested values are not supported", key)
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// ApplyFile loads path and exports every key not already present in the
// environment, so real environment variables always win.
func ApplyFile(path string) error {
	values, err := LoadFile(path)
	if err != nil {
		return err
	}
	for key, value := range values {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("config key %s: %w", key, err)
		}
	}
	return nil
}
