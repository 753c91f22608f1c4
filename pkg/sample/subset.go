package sample

import (
	"fmt"

	"go.uber.org/zap"

	"mrewave/pkg/labeled"
)

// Window selects the index range [Start, Stop) along one spatial axis.
type Window struct {
	Dim         string
	Start, Stop int
}

// SelectSubset keeps the given acquisition frequency and crops every array
// to the spatial windows. Arrays without a frequency axis are only cropped.
func (s *Sample) SelectSubset(frequency float64, region ...Window) error {
	if s.Arrays == nil {
		return ErrNotLoaded
	}
	for _, w := range region {
		if !isSpatial(w.Dim) {
			return fmt.Errorf("%w: %q is not a spatial axis", labeled.ErrUnknownDim, w.Dim)
		}
	}

	out, err := s.Arrays.Map(func(_ string, a *labeled.DataArray) (*labeled.DataArray, error) {
		var err error
		if a.Axis("frequency") >= 0 {
			if a, err = a.Sel("frequency", frequency); err != nil {
				return nil, err
			}
		}
		for _, w := range region {
			if a.Axis(w.Dim) < 0 {
				continue
			}
			if a, err = a.Isel(w.Dim, w.Start, w.Stop); err != nil {
				return nil, err
			}
		}
		return a, nil
	})
	if err != nil {
		return err
	}
	s.Arrays = out
	s.logger.Debug("selected subset", zap.Float64("frequency", frequency), zap.Stringer("arrays", out))
	return nil
}

// SpatialDownsample coarsens the spatial axes by factor, trimming ticks that
// do not fill a block. Wave and elastogram are averaged; region masks keep
// the block maximum so labels stay integral.
func (s *Sample) SpatialDownsample(factor int) error {
	if s.Arrays == nil {
		return ErrNotLoaded
	}
	if factor < 1 {
		return fmt.Errorf("downsampling factor must be positive, got %d", factor)
	}
	s.logger.Info("spatial downsampling", zap.Int("factor", factor))

	out, err := s.Arrays.Map(func(name string, a *labeled.DataArray) (*labeled.DataArray, error) {
		factors := make(map[string]int, len(SpatialDims))
		for _, d := range SpatialDims {
			if a.Axis(d) >= 0 {
				factors[d] = factor
			}
		}
		reduce := labeled.ReduceMean
		if name == RegionArray || name == BinaryArray {
			reduce = labeled.ReduceMax
		}
		return a.Coarsen(factors, reduce)
	})
	if err != nil {
		return err
	}
	s.Arrays = out
	return nil
}

func isSpatial(dim string) bool {
	for _, d := range SpatialDims {
		if d == dim {
			return true
		}
	}
	return false
}
