package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mrewave/internal/models"
	"mrewave/pkg/config"
	"mrewave/pkg/matfile"
	"mrewave/pkg/volume"
)

// synthCmd writes a synthetic sample for trying out the pipeline
var synthCmd = &cobra.Command{
	Use:   "synth [dir]",
	Short: "Write a synthetic sample (MAT, masks, modulus images and config)",
	Long: `Writes a plane shear wave travelling along x through a box with a
stiffer spherical inclusion, stored the way a BIOQIC acquisition is:

  wave.mat          magnitude and phase, axes (x, y, z, timesteps, component, frequency)
  seg.mat           img_seg, axes (z, y, x)
  filled.mat        img_seg_filled, axes (z, y, x)
  storage.nii.gz    storage modulus, axes (z, y, x, component)
  loss.nii.gz       loss modulus, axes (z, y, x, component)
  sample.yaml       a config running the full pipeline on these files`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nx, _ := cmd.Flags().GetInt("nx")
		ny, _ := cmd.Flags().GetInt("ny")
		nz, _ := cmd.Flags().GetInt("nz")
		nt, _ := cmd.Flags().GetInt("nt")
		path, err := writeSynthetic(args[0], synthShape{nx, ny, nz, nt})
		if err != nil {
			return err
		}
		logger.Info("synthetic sample written", zap.String("config", path))
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	synthCmd.Flags().Int("nx", 16, "Voxels along x")
	synthCmd.Flags().Int("ny", 12, "Voxels along y")
	synthCmd.Flags().Int("nz", 8, "Voxels along z")
	synthCmd.Flags().Int("nt", 4, "Timesteps")
}

type synthShape struct{ nx, ny, nz, nt int }

const (
	synthFrequency  = 60.0
	synthComponents = 3
)

// writeSynthetic writes the sample files into dir and returns the path of
// its config.
func writeSynthetic(dir string, sh synthShape) (string, error) {
	if sh.nx < 2 || sh.ny < 2 || sh.nz < 2 || sh.nt < 1 {
		return "", fmt.Errorf("synthetic sample needs at least 2x2x2 voxels and one timestep")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	inside := func(x, y, z int) bool {
		dx := float64(x) - float64(sh.nx-1)/2
		dy := float64(y) - float64(sh.ny-1)/2
		dz := float64(z) - float64(sh.nz-1)/2
		r := float64(min(sh.nx, sh.ny, sh.nz)) / 4
		return dx*dx+dy*dy+dz*dz <= r*r
	}

	mag := models.NewVolume(sh.nx, sh.ny, sh.nz, sh.nt, synthComponents, 1)
	ph := models.NewVolume(sh.nx, sh.ny, sh.nz, sh.nt, synthComponents, 1)
	for x := 0; x < sh.nx; x++ {
		k := 2 * math.Pi / float64(sh.nx) // one wavelength across the box
		if inside(x, sh.ny/2, sh.nz/2) {
			k *= 0.5
		}
		for y := 0; y < sh.ny; y++ {
			for z := 0; z < sh.nz; z++ {
				for t := 0; t < sh.nt; t++ {
					for c := 0; c < synthComponents; c++ {
						amp := 1.0 / float64(c+1)
						phase := k*float64(x) - 2*math.Pi*float64(t)/float64(sh.nt)
						mag.Set(amp, x, y, z, t, c, 0)
						ph.Set(math.Remainder(phase, 2*math.Pi), x, y, z, t, c, 0)
					}
				}
			}
		}
	}

	seg := models.NewVolume(sh.nz, sh.ny, sh.nx)
	filled := models.NewVolume(sh.nz, sh.ny, sh.nx)
	storage := models.NewVolume(sh.nz, sh.ny, sh.nx, synthComponents)
	loss := models.NewVolume(sh.nz, sh.ny, sh.nx, synthComponents)
	for z := 0; z < sh.nz; z++ {
		for y := 0; y < sh.ny; y++ {
			for x := 0; x < sh.nx; x++ {
				region, mu := 1.0, 3000.0
				if inside(x, y, z) {
					region, mu = 2, 9000
				}
				seg.Set(region, z, y, x)
				filled.Set(1, z, y, x)
				for c := 0; c < synthComponents; c++ {
					storage.Set(mu, z, y, x, c)
					loss.Set(0.1*region, z, y, x, c)
				}
			}
		}
	}

	files := []struct {
		name string
		vars []*matfile.Variable
	}{
		{"wave.mat", []*matfile.Variable{{Name: "magnitude", Real: mag}, {Name: "phase", Real: ph}}},
		{"seg.mat", []*matfile.Variable{{Name: "img_seg", Real: seg}}},
		{"filled.mat", []*matfile.Variable{{Name: "img_seg_filled", Real: filled}}},
	}
	for _, f := range files {
		if err := matfile.WriteV5File(filepath.Join(dir, f.name), f.vars, true); err != nil {
			return "", err
		}
	}
	if err := volume.WriteNIfTI(filepath.Join(dir, "storage.nii.gz"), storage); err != nil {
		return "", err
	}
	if err := volume.WriteNIfTI(filepath.Join(dir, "loss.nii.gz"), loss); err != nil {
		return "", err
	}

	cfg := config.DefaultConfig()
	cfg.Sample.Path = "wave.mat"
	cfg.Sample.Frequency = synthFrequency
	cfg.Sample.Resolution = []float64{1.5, 1.5, 1.5}
	cfg.Sample.MaskPath = "seg.mat"
	cfg.Sample.BinaryMaskPath = "filled.mat"
	cfg.Sample.StorageModPath = "storage.nii.gz"
	cfg.Sample.LossModPath = "loss.nii.gz"
	cfg.Processing.Preprocess = true
	if sh.nt > 1 {
		cfg.Processing.Harmonic = 1
	}
	cfg.Output.NetCDF = "sample.nc"

	path := filepath.Join(dir, "sample.yaml")
	if err := config.SaveConfig(cfg, path); err != nil {
		return "", err
	}
	return path, nil
}
