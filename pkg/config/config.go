// Package config loads and validates driver configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// dataset layout, query defaults, cross-validation defaults, scanning, and
// the ambient logging/metrics settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level driver configuration.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Query      QueryConfig      `yaml:"query"`
	Validation ValidationConfig `yaml:"validation"`
	Scan       ScanConfig       `yaml:"scan"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DataConfig locates the feature index and its externally stored shape.
type DataConfig struct {
	// FeatureIndex is the path to the binary feature-index file.
	FeatureIndex string `yaml:"featureIndex" validate:"required"`
	// NumDocs is the record count of the feature index, stored separately
	// from the index itself.
	NumDocs int64 `yaml:"numDocs" validate:"min=0"`
	// NumFeats is the size of the feature universe F.
	NumFeats uint32 `yaml:"numFeats" validate:"required,min=1"`
}

// QueryConfig holds retrieval defaults for cmd/query.
type QueryConfig struct {
	Limit     int     `yaml:"limit" validate:"min=1"`
	Threshold float64 `yaml:"threshold"`
	MinDate   uint32  `yaml:"minDate"`
	MaxDate   uint32  `yaml:"maxDate"`
	// TrainMinDate/TrainMaxDate bound the background counting window; zero
	// values fall back to MinDate/MaxDate.
	TrainMinDate uint32 `yaml:"trainMinDate"`
	TrainMaxDate uint32 `yaml:"trainMaxDate"`
	OutDir       string `yaml:"outDir"`
}

// ValidationConfig holds cross-validation defaults for cmd/validate.
type ValidationConfig struct {
	NFolds       int     `yaml:"nFolds" validate:"min=2"`
	NumNegatives int     `yaml:"numNegatives" validate:"min=1"`
	Alpha        float64 `yaml:"alpha" validate:"gt=0,lt=1"`
	Seed         int64   `yaml:"seed"`
	OutDir       string  `yaml:"outDir"`
}

// ScanConfig controls scanner resources.
type ScanConfig struct {
	// Workers is the number of parallel scan chunks; 1 selects the
	// single-threaded reference path.
	Workers int `yaml:"workers" validate:"min=1"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Query: QueryConfig{
			Limit:   1000,
			MinDate: 11110101,
			MaxDate: 33330303,
			OutDir:  "results",
		},
		Validation: ValidationConfig{
			NFolds:       10,
			NumNegatives: 50000,
			Alpha:        0.5,
			OutDir:       "validation",
		},
		Scan:    ScanConfig{Workers: 1},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Port: 9090},
	}
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags on the loaded configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if c.Query.MinDate > c.Query.MaxDate {
		return fmt.Errorf("validating config: query minDate %d exceeds maxDate %d",
			c.Query.MinDate, c.Query.MaxDate)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MSCANNER_FEATURE_INDEX"); v != "" {
		cfg.Data.FeatureIndex = v
	}
	if v := os.Getenv("MSCANNER_NUM_DOCS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Data.NumDocs = n
		}
	}
	if v := os.Getenv("MSCANNER_NUM_FEATS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Data.NumFeats = uint32(n)
		}
	}
	if v := os.Getenv("MSCANNER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MSCANNER_SCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scan.Workers = n
		}
	}
}
