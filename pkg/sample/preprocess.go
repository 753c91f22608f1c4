package sample

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"mrewave/pkg/labeled"
	"mrewave/pkg/matfile"
	"mrewave/pkg/volume"
)

// Preprocess attaches the region masks and the ground-truth elastogram
// built from the given storage and loss modulus images.
func (s *Sample) Preprocess(storageModFile, lossModFile string) error {
	s.StorageModFile = storageModFile
	s.LossModFile = lossModFile
	if err := s.SegmentRegions(); err != nil {
		return err
	}
	return s.CreateElastogram()
}

// SegmentRegions attaches the region mask as spatial_region, promoted to a
// coordinate, and the filled mask as binary_region. Masks are aligned onto
// the spatial axes only, so a mask axis can never land on timesteps. Mask
// files that are not configured are skipped. The wave data is left
// untouched.
func (s *Sample) SegmentRegions() error {
	wave := s.Wave()
	if wave == nil {
		return ErrNotLoaded
	}
	s.logger.Info("segmenting spatial regions")

	ref, err := wave.Mean("timesteps", "frequency", "component")
	if err != nil {
		return err
	}

	if s.MaskPath != "" {
		s.logger.Debug("adding mask from file", zap.String("path", s.MaskPath))
		mask, err := s.loadMask(s.MaskPath, s.Vars.Mask, ref)
		if err != nil {
			return err
		}
		if err := s.Arrays.Assign(RegionArray, mask); err != nil {
			return fmt.Errorf("%s: %w", s.MaskPath, err)
		}
		if err := s.Arrays.AssignCoords(RegionArray); err != nil {
			return err
		}
	}

	if s.BinMaskPath != "" {
		s.logger.Debug("adding binary mask", zap.String("path", s.BinMaskPath))
		mask, err := s.loadMask(s.BinMaskPath, s.Vars.BinaryMask, ref)
		if err != nil {
			return err
		}
		if err := s.Arrays.Assign(BinaryArray, mask); err != nil {
			return fmt.Errorf("%s: %w", s.BinMaskPath, err)
		}
	}
	return nil
}

func (s *Sample) loadMask(path, name string, ref *labeled.DataArray) (*labeled.DataArray, error) {
	f, err := matfile.Load(path)
	if err != nil {
		return nil, err
	}
	v, err := f.Var(name)
	if err != nil {
		return nil, err
	}
	if v.Real == nil {
		return nil, fmt.Errorf("%s: %s is %s, not a numeric mask", path, name, v.Class)
	}

	raw, err := labeled.Raw(name, v.Real)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	mask, err := labeled.AlignLike(raw, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.logger.Debug("mask aligned",
		zap.String("var", name),
		zap.Ints("raw_shape", v.Real.Shape),
		zap.Strings("dims", mask.Dims),
		zap.Ints("shape", mask.Shape))
	return mask, nil
}

// CreateElastogram attaches mu = storage * exp(i * loss), read from the
// modulus images, aligned onto the frequency and spatial axes of the wave.
// A modulus axis matching the component axis becomes component.
func (s *Sample) CreateElastogram() error {
	wave := s.Wave()
	if wave == nil {
		return ErrNotLoaded
	}
	if s.StorageModFile == "" || s.LossModFile == "" {
		return fmt.Errorf("elastogram needs both storage and loss modulus files")
	}
	s.logger.Info("creating ground truth elastogram")

	ref, err := wave.Mean("component", "timesteps")
	if err != nil {
		return err
	}

	storage, err := volume.LoadNIfTI(s.StorageModFile)
	if err != nil {
		return err
	}
	loss, err := volume.LoadNIfTI(s.LossModFile)
	if err != nil {
		return err
	}

	raw, err := labeled.RawPolar(MuArray, storage, loss)
	if err != nil {
		return fmt.Errorf("%s, %s: %w", s.StorageModFile, s.LossModFile, err)
	}

	var extra []labeled.Coordinate
	if c, ok := wave.Coords["component"]; ok {
		extra = append(extra, c)
	}
	mu, err := labeled.AlignLike(raw, ref, extra...)
	if err != nil {
		return fmt.Errorf("%s: %w", s.StorageModFile, err)
	}
	mu.Attrs["long_name"] = "elastogram"
	mean, std := stat.MeanStdDev(mu.Abs(), nil)
	s.logger.Debug("elastogram aligned",
		zap.Ints("raw_shape", storage.Shape),
		zap.Strings("dims", mu.Dims),
		zap.Ints("shape", mu.Shape),
		zap.Float64("abs_mean", mean),
		zap.Float64("abs_std", std))

	return s.Arrays.Assign(MuArray, mu)
}
