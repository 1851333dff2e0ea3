// Package config provides configuration loading and management for
// cpmphot. It handles loading configuration from YAML files and provides
// default values. The fitting packages take all parameters explicitly;
// the config only feeds the command-line driver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Selection parameters for the predictor-pixel stages
	Selection struct {
		// ExclusionSize is the half-width of the region around the
		// target barred from predictor selection
		ExclusionSize int `yaml:"exclusionSize"`

		// ExclusionMethod is one of closest, cross, row_exclude,
		// col_exclude
		ExclusionMethod string `yaml:"exclusionMethod"`

		// PredictorCount is the number of predictor pixels per fit
		PredictorCount int `yaml:"predictorCount"`

		// PredictorMethod is one of random, similar_brightness,
		// cosine_similarity
		PredictorMethod string `yaml:"predictorMethod"`

		// Seed makes random predictor selection reproducible; negative
		// values draw a fresh sequence
		Seed int64 `yaml:"seed"`
	} `yaml:"selection"`

	// Fit parameters
	Fit struct {
		// Reg is the L2 regularization strength on the predictor
		// coefficients
		Reg float64 `yaml:"reg"`

		// TrendReg is the regularization strength on the polynomial
		// trend coefficients
		TrendReg float64 `yaml:"trendReg"`

		// TrendTerms is the number of polynomial trend terms
		TrendTerms int `yaml:"trendTerms"`

		// TrendHalfWidth scales the centered time axis the trend basis
		// is built over
		TrendHalfWidth float64 `yaml:"trendHalfWidth"`

		// Rescale selects the median-rescaled fitting path
		Rescale bool `yaml:"rescale"`

		// UseTrend appends the polynomial trend basis to the fit
		UseTrend bool `yaml:"useTrend"`
	} `yaml:"fit"`

	// Clip parameters for iterative outlier removal
	Clip struct {
		// Sigma is the clip threshold in units of the residual RMS
		Sigma float64 `yaml:"sigma"`

		// MaxIter bounds the clip/re-fit loop
		MaxIter int `yaml:"maxIter"`
	} `yaml:"clip"`

	// Batch parameters
	Batch struct {
		// Workers is the batch worker-pool size
		Workers int `yaml:"workers"`
	} `yaml:"batch"`

	// Input parameters
	Input struct {
		// RemoveBad drops samples with nonzero quality flags at load
		RemoveBad bool `yaml:"removeBad"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Selection.ExclusionSize = 10
	cfg.Selection.ExclusionMethod = "closest"
	cfg.Selection.PredictorCount = 256
	cfg.Selection.PredictorMethod = "similar_brightness"
	cfg.Selection.Seed = -1

	cfg.Fit.Reg = 0.01
	cfg.Fit.TrendReg = 0.0
	cfg.Fit.TrendTerms = 4
	cfg.Fit.TrendHalfWidth = 1.0
	cfg.Fit.Rescale = true
	cfg.Fit.UseTrend = false

	cfg.Clip.Sigma = 5.0
	cfg.Clip.MaxIter = 50

	cfg.Batch.Workers = runtime.NumCPU()

	cfg.Input.RemoveBad = true
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
