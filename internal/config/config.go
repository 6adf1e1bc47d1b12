// Package config loads the externally supplied vocabularies: the known
// station and model lists (always included in per-station/per-model stats,
// even with zero records) and the KPI reference pass rate. The pipeline
// does not validate the lists' contents.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML shape of the vocabulary file.
type Config struct {
	Stations          []string `yaml:"stations"`
	Models            []string `yaml:"models"`
	ReferencePassRate float64  `yaml:"reference_pass_rate"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{ReferencePassRate: 95.0}
}

// Load reads the YAML vocabulary file. A missing or unreadable file yields
// the defaults along with the error so the caller can log and continue.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), err
	}
	if cfg.ReferencePassRate <= 0 {
		cfg.ReferencePassRate = 95.0
	}
	return cfg, nil
}
