package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	StrategyGreedy    = "greedy"
	StrategyUnionFind = "unionfind"
)

type AppSettings struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type DedupSettings struct {
	Threshold    float64  `yaml:"threshold"`
	HashSize     int      `yaml:"hash_size"`
	Strategy     string   `yaml:"strategy"`
	Extensions   []string `yaml:"extensions"`
	DryRun       bool     `yaml:"dry_run"`
	HideProgress bool     `yaml:"hide_progress"`
}

type StorageSettings struct {
	DBPath          string `yaml:"db_path"`
	CacheEnabled    bool   `yaml:"cache_enabled"`
	CacheMaxAgeDays int    `yaml:"cache_max_age_days"`
}

type AppConfig struct {
	App     AppSettings     `yaml:"app"`
	Dedup   DedupSettings   `yaml:"dedup"`
	Storage StorageSettings `yaml:"storage"`
}

// LoadConfig reads and parses two YAML files (app config and dedup config)
// and merges them into a single AppConfig struct. A file that does not exist
// contributes nothing; defaults cover every field.
func LoadConfig(appYaml, dedupYaml string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := loadYAML(appYaml, cfg); err != nil {
		return nil, fmt.Errorf("loading %s: %w", appYaml, err)
	}

	if err := loadYAML(dedupYaml, cfg); err != nil {
		return nil, fmt.Errorf("loading %s: %w", dedupYaml, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a config populated with defaults only.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.App.Host == "" {
		cfg.App.Host = "0.0.0.0"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 8000
	}
	if cfg.App.DataDir == "" {
		cfg.App.DataDir = "data"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "text"
	}
	if cfg.Dedup.Threshold == 0 {
		cfg.Dedup.Threshold = 96.0
	}
	if cfg.Dedup.HashSize == 0 {
		cfg.Dedup.HashSize = 8
	}
	if cfg.Dedup.Strategy == "" {
		cfg.Dedup.Strategy = StrategyGreedy
	}
	if len(cfg.Dedup.Extensions) == 0 {
		cfg.Dedup.Extensions = []string{".png", ".jpg", ".jpeg", ".bmp"}
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "data/fishdedup.db"
	}
	if cfg.Storage.CacheMaxAgeDays == 0 {
		cfg.Storage.CacheMaxAgeDays = 30
	}
}

// Validate checks the values that the dedup pipeline cannot run without.
func (cfg *AppConfig) Validate() error {
	var errs []error
	if cfg.Dedup.Threshold < 0 || cfg.Dedup.Threshold > 100 {
		errs = append(errs, fmt.Errorf("dedup.threshold must be between 0 and 100, got %g", cfg.Dedup.Threshold))
	}
	if !ValidHashSize(cfg.Dedup.HashSize) {
		errs = append(errs, fmt.Errorf("dedup.hash_size must be a power of two between 4 and 16, got %d", cfg.Dedup.HashSize))
	}
	switch cfg.Dedup.Strategy {
	case StrategyGreedy, StrategyUnionFind:
	default:
		errs = append(errs, fmt.Errorf("dedup.strategy must be %q or %q, got %q",
			StrategyGreedy, StrategyUnionFind, cfg.Dedup.Strategy))
	}
	if cfg.App.Port < 1 || cfg.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port out of range: %d", cfg.App.Port))
	}
	return errors.Join(errs...)
}

// ValidHashSize reports whether n is an accepted pHash edge length.
func ValidHashSize(n int) bool {
	switch n {
	case 4, 8, 16:
		return true
	}
	return false
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, out)
}
