package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger   *zap.Logger
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mrewave",
	Short: "Load MRE wave images from MATLAB files into labeled datasets",
	Long: `mrewave reads magnetic-resonance elastography acquisitions stored as
MATLAB files (v5 or v7.3), builds the complex wave field from magnitude and
phase, labels it with spatial, temporal, frequency and component coordinates,
and optionally attaches segmentation masks and a ground-truth elastogram
built from storage and loss modulus NIfTI images.

The result can be exported to NetCDF and rendered as PNG slices.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		config.Level = logLevel
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mrewave.yaml", "Sample configuration file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(inspectCmd, loadCmd, batchCmd, configCmd, synthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
