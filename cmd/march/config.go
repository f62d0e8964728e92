// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".march"
	defaultConfigFile = "project.yaml"
)

// Config is the .march/project.yaml project file: just enough to find
// the store without retyping --store on every invocation, mirroring
// the teacher's .cie/project.yaml shape.
type Config struct {
	Version  string `yaml:"version"`
	StoreDir string `yaml:"store_dir"`
}

// DefaultConfig returns a Config pointing at the conventional
// .march/store directory next to the config file itself.
func DefaultConfig() *Config {
	return &Config{Version: "1", StoreDir: filepath.Join(defaultConfigDir, "store")}
}

// LoadConfig reads path (defaulting to ./.march/project.yaml). A
// missing file is not an error: the caller falls back to flags/env.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(defaultConfigDir, defaultConfigFile)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

// resolveStoreDir applies the same override precedence the teacher
// uses for its data directory: flag, then env var, then config, then
// default.
func resolveStoreDir(cfg *Config, flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if env := os.Getenv("MARCH_STORE_DIR"); env != "" {
		return env
	}
	if cfg != nil && cfg.StoreDir != "" {
		return cfg.StoreDir
	}
	return filepath.Join(defaultConfigDir, "store")
}
