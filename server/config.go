// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// YAML configuration loading over DefaultConfig.

package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads path and overlays it on DefaultConfig. Unset timeouts keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes over DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Timeouts = cfg.Timeouts.WithDefaults()
	if _, err := cfg.ListenAddrs(); err != nil {
		return nil, err
	}
	return cfg, nil
}
