// Package config provides configuration loading and management for mrewave.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"mrewave/pkg/sample"
	"mrewave/pkg/visualization"
)

// Config represents one sample run loaded from YAML
type Config struct {
	// Sample describes the input files of one acquisition
	Sample struct {
		// Path is the MAT file holding magnitude and phase
		Path string `yaml:"path"`

		// Frequency is the acquisition frequency in Hz
		Frequency float64 `yaml:"frequency"`

		// Resolution is the voxel size in mm along x, y and z
		Resolution []float64 `yaml:"resolution"`

		// MaskPath and BinaryMaskPath are optional segmentation MAT files
		MaskPath       string `yaml:"maskPath"`
		BinaryMaskPath string `yaml:"binaryMaskPath"`

		// StorageModPath and LossModPath are the NIfTI modulus images
		StorageModPath string `yaml:"storageModPath"`
		LossModPath    string `yaml:"lossModPath"`

		// Vars overrides the MAT variable names
		Vars sample.VarNames `yaml:"vars"`
	} `yaml:"sample"`

	// Processing parameters
	Processing struct {
		// NumCores bounds how many samples the batch command loads at once
		NumCores int `yaml:"numCores"`

		// Preprocess attaches masks and the elastogram after loading
		Preprocess bool `yaml:"preprocess"`

		// DownsampleFactor coarsens the spatial axes when above 1
		DownsampleFactor int `yaml:"downsampleFactor"`

		// Harmonic is the temporal harmonic to export, or -1 for none
		Harmonic int `yaml:"harmonic"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// NetCDF is the file the dataset is exported to; empty skips export
		NetCDF string `yaml:"netcdf"`

		// SlicesDir receives PNG slices of the wave; empty skips rendering
		SlicesDir string `yaml:"slicesDir"`

		// Part is the displayed quantity: magnitude, real, imag or phase
		Part string `yaml:"part"`

		// Heatmap also renders a labeled heat map of the central plane
		Heatmap bool `yaml:"heatmap"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Sample.Frequency = 60
	cfg.Sample.Resolution = []float64{1, 1, 1}
	cfg.Sample.Vars = sample.DefaultVarNames()

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Preprocess = false
	cfg.Processing.DownsampleFactor = 1
	cfg.Processing.Harmonic = -1

	cfg.Output.Part = string(visualization.Magnitude)
	cfg.Output.Heatmap = false
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the values that cannot be caught by YAML decoding
func (c *Config) Validate() error {
	if len(c.Sample.Resolution) != 3 {
		return fmt.Errorf("sample.resolution needs 3 values, got %d", len(c.Sample.Resolution))
	}
	if c.Sample.Frequency <= 0 {
		return fmt.Errorf("sample.frequency must be positive, got %g", c.Sample.Frequency)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.DownsampleFactor < 1 {
		return fmt.Errorf("processing.downsampleFactor must be at least 1, got %d", c.Processing.DownsampleFactor)
	}
	if c.Processing.Preprocess && (c.Sample.StorageModPath == "" || c.Sample.LossModPath == "") {
		return fmt.Errorf("processing.preprocess needs sample.storageModPath and sample.lossModPath")
	}
	if _, err := visualization.ParsePart(c.Output.Part); err != nil {
		return fmt.Errorf("output.part: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	// Relative input and output paths are taken from the config's directory
	base := filepath.Dir(configPath)
	for _, p := range []*string{
		&cfg.Sample.Path, &cfg.Sample.MaskPath, &cfg.Sample.BinaryMaskPath,
		&cfg.Sample.StorageModPath, &cfg.Sample.LossModPath,
		&cfg.Output.NetCDF, &cfg.Output.SlicesDir,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
