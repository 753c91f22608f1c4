package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mrewave/pkg/config"
	"mrewave/pkg/export"
	"mrewave/pkg/sample"
	"mrewave/pkg/visualization"
)

// runPipeline loads one sample as described by cfg, enriches it and writes
// the requested outputs.
func runPipeline(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sample.Sample, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sample.Path == "" {
		return nil, fmt.Errorf("no MAT file given (set sample.path or --mat)")
	}
	start := time.Now()

	s, err := sample.New(cfg.Sample.Path, cfg.Sample.Frequency, cfg.Sample.Resolution,
		sample.WithLogger(log),
		sample.WithVarNames(cfg.Sample.Vars),
		sample.WithMasks(cfg.Sample.MaskPath, cfg.Sample.BinaryMaskPath))
	if err != nil {
		return nil, err
	}
	if err := s.Load(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case cfg.Processing.Preprocess:
		if err := s.Preprocess(cfg.Sample.StorageModPath, cfg.Sample.LossModPath); err != nil {
			return nil, err
		}
	case s.MaskPath != "" || s.BinMaskPath != "":
		if err := s.SegmentRegions(); err != nil {
			return nil, err
		}
	}

	if f := cfg.Processing.DownsampleFactor; f > 1 {
		if err := s.SpatialDownsample(f); err != nil {
			return nil, err
		}
	}

	if k := cfg.Processing.Harmonic; k >= 0 {
		h, err := s.TemporalHarmonic(k)
		if err != nil {
			return nil, err
		}
		if err := s.Arrays.Assign(h.Name, h); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path := cfg.Output.NetCDF; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := export.WriteNetCDF(s.Arrays, path); err != nil {
			return nil, err
		}
		log.Info("dataset exported", zap.String("path", path))
	}

	if dir := cfg.Output.SlicesDir; dir != "" {
		if err := renderSlices(s, cfg, dir); err != nil {
			return nil, err
		}
		log.Info("slices rendered", zap.String("dir", dir))
	}

	log.Info("sample processed",
		zap.String("path", s.Path),
		zap.Strings("arrays", s.Arrays.AllNames()),
		zap.Duration("elapsed", time.Since(start)))
	return s, nil
}

// renderSlices writes the x-y planes of the wave along z for the first
// timestep and component, plus an optional heat map of the central plane.
func renderSlices(s *sample.Sample, cfg *config.Config, dir string) error {
	part, err := visualization.ParsePart(cfg.Output.Part)
	if err != nil {
		return err
	}
	viewer, err := visualization.NewViewer(s.Wave(), part)
	if err != nil {
		return err
	}
	if err := viewer.SaveSliceSequence("z", "x", "y", dir); err != nil {
		return err
	}
	if !cfg.Output.Heatmap {
		return nil
	}
	if err := viewer.Fix("z", s.Wave().Size("z")/2); err != nil {
		return err
	}
	return viewer.SaveHeatmap("x", "y", filepath.Join(dir, "wave_heatmap.png"))
}
