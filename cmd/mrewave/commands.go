package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"mrewave/pkg/config"
	"mrewave/pkg/matfile"
)

// inspectCmd lists the variables of a MAT file
var inspectCmd = &cobra.Command{
	Use:   "inspect [file.mat]",
	Short: "List the variables of a MATLAB file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

// loadCmd runs the pipeline for one sample
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load one sample and write the requested outputs",
	Long: `Loads the sample described by --config, with any flag overriding the
corresponding config value.

Example:
  mrewave load --mat wave.mat --frequency 60 --resolution 1.5,1.5,2 --netcdf wave.nc`,
	RunE: runLoad,
}

// batchCmd runs several sample configs concurrently
var batchCmd = &cobra.Command{
	Use:   "batch [config.yaml]...",
	Short: "Load several samples concurrently",
	Long: `Runs the load pipeline for every config file given. At most --jobs samples
are processed at once (default: processing.numCores of --config).
The first failure cancels the remaining samples.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var batchJobs int

func init() {
	f := loadCmd.Flags()
	f.String("mat", "", "MAT file with magnitude and phase")
	f.Float64("frequency", 60, "Acquisition frequency in Hz")
	f.Float64Slice("resolution", []float64{1, 1, 1}, "Voxel size in mm along x,y,z")
	f.String("mask", "", "MAT file with the region segmentation")
	f.String("bin-mask", "", "MAT file with the filled binary mask")
	f.String("storage", "", "Storage modulus NIfTI image")
	f.String("loss", "", "Loss modulus NIfTI image")
	f.Bool("preprocess", false, "Attach masks and the elastogram")
	f.Int("downsample", 1, "Spatial downsampling factor")
	f.Int("harmonic", -1, "Temporal harmonic to add to the dataset (-1 for none)")
	f.String("netcdf", "", "Export the dataset to this NetCDF file")
	f.String("slices", "", "Render wave slices into this directory")
	f.String("part", "magnitude", "Displayed part: magnitude, real, imag or phase")
	f.Bool("heatmap", false, "Also render a heat map of the central plane")

	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", 0, "Samples processed at once (0: processing.numCores)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := matfile.Load(args[0])
	if err != nil {
		return err
	}
	logger.Debug("mat file loaded", zap.String("path", f.Path), zap.Stringer("format", f.Format))
	return f.Describe(cmd.OutOrStdout(), 0)
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Output.Verbose {
		logLevel.SetLevel(zapcore.DebugLevel)
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := runPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), s.Arrays)
	return nil
}

// applyFlags copies explicitly set load flags over the config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	set := func(name string, apply func()) {
		if err == nil && f.Changed(name) {
			apply()
		}
	}
	set("mat", func() { cfg.Sample.Path, err = f.GetString("mat") })
	set("frequency", func() { cfg.Sample.Frequency, err = f.GetFloat64("frequency") })
	set("resolution", func() { cfg.Sample.Resolution, err = f.GetFloat64Slice("resolution") })
	set("mask", func() { cfg.Sample.MaskPath, err = f.GetString("mask") })
	set("bin-mask", func() { cfg.Sample.BinaryMaskPath, err = f.GetString("bin-mask") })
	set("storage", func() { cfg.Sample.StorageModPath, err = f.GetString("storage") })
	set("loss", func() { cfg.Sample.LossModPath, err = f.GetString("loss") })
	set("preprocess", func() { cfg.Processing.Preprocess, err = f.GetBool("preprocess") })
	set("downsample", func() { cfg.Processing.DownsampleFactor, err = f.GetInt("downsample") })
	set("harmonic", func() { cfg.Processing.Harmonic, err = f.GetInt("harmonic") })
	set("netcdf", func() { cfg.Output.NetCDF, err = f.GetString("netcdf") })
	set("slices", func() { cfg.Output.SlicesDir, err = f.GetString("slices") })
	set("part", func() { cfg.Output.Part, err = f.GetString("part") })
	set("heatmap", func() { cfg.Output.Heatmap, err = f.GetBool("heatmap") })
	return err
}

func runBatch(cmd *cobra.Command, args []string) error {
	jobs := batchJobs
	if jobs < 1 {
		base, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		jobs = base.Processing.NumCores
	}

	ctx, cancel := signalContext()
	defer cancel()
	return processBatch(ctx, args, jobs)
}

// processBatch runs the pipeline for each config file with at most jobs
// samples in flight.
func processBatch(ctx context.Context, paths []string, jobs int) error {
	if jobs < 1 {
		jobs = 1
	}
	logger.Info("batch started", zap.Int("samples", len(paths)), zap.Int("jobs", jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, path := range paths {
		g.Go(func() error {
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			if _, err := runPipeline(ctx, cfg, logger.With(zap.String("config", path))); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("batch failed", zap.Error(err))
		return err
	}
	logger.Info("batch finished", zap.Int("samples", len(paths)))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
