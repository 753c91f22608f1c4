package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestSaveAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sample.yaml")

	cfg := DefaultConfig()
	cfg.Sample.Path = "/data/wave.mat"
	cfg.Sample.Frequency = 50
	cfg.Sample.Resolution = []float64{1.5, 1.5, 2}
	cfg.Processing.NumCores = 2
	cfg.Output.Heatmap = true
	require.NoError(t, SaveConfig(cfg, path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadConfigResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.yaml")
	yaml := `
sample:
  path: wave.mat
  maskPath: /abs/seg.mat
  vars:
    mask: seg
output:
  netcdf: out/sample.nc
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wave.mat"), cfg.Sample.Path)
	assert.Equal(t, "/abs/seg.mat", cfg.Sample.MaskPath)
	assert.Equal(t, filepath.Join(dir, "out", "sample.nc"), cfg.Output.NetCDF)
	assert.Equal(t, "seg", cfg.Sample.Vars.Mask)
	// untouched keys keep their defaults
	assert.Equal(t, "img_seg_filled", cfg.Sample.Vars.BinaryMask)
	assert.Equal(t, 60.0, cfg.Sample.Frequency)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample: [unclosed"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"resolution":  func(c *Config) { c.Sample.Resolution = []float64{1} },
		"frequency":   func(c *Config) { c.Sample.Frequency = 0 },
		"cores":       func(c *Config) { c.Processing.NumCores = 0 },
		"downsample":  func(c *Config) { c.Processing.DownsampleFactor = 0 },
		"preprocess":  func(c *Config) { c.Processing.Preprocess = true },
		"output part": func(c *Config) { c.Output.Part = "modulus" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
