// Package sample loads one MRE acquisition stored in BIOQIC-style MATLAB
// files and turns it into a labeled dataset.
//
// The MAT file is expected to hold magnitude and phase arrays with MATLAB
// axes (x, y, z, timesteps, component, frequency). The resulting wave field
// always has the canonical axes (timesteps, frequency, x, y, z, component).
// Segmentation masks and a ground-truth elastogram can be attached
// afterwards; they are aligned onto the wave coordinates by shape.
package sample

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mrewave/pkg/labeled"
	"mrewave/pkg/matfile"
)

// Names of the arrays a sample dataset may hold.
const (
	WaveArray   = "wave"
	RegionArray = "spatial_region"
	BinaryArray = "binary_region"
	MuArray     = "mu"
)

var (
	// CanonicalDims is the axis order of every wave field.
	CanonicalDims = []string{"timesteps", "frequency", "x", "y", "z", "component"}

	// NativeDims is the MATLAB axis order of the wave arrays on disk.
	NativeDims = []string{"x", "y", "z", "timesteps", "component", "frequency"}

	// SpatialDims are the axes scaled by the resolution.
	SpatialDims = []string{"x", "y", "z"}

	componentLabels = []string{"x", "y", "z"}
)

var (
	// ErrNotLoaded is returned by enrichment steps called before Load.
	ErrNotLoaded = errors.New("sample not loaded")

	// ErrNoWave is returned when a MAT file has neither a magnitude/phase
	// pair nor a stored complex wave.
	ErrNoWave = errors.New("no wave data")
)

// VarNames maps the roles of MAT variables to their names in the files.
type VarNames struct {
	Magnitude  string `yaml:"magnitude"`
	Phase      string `yaml:"phase"`
	Wave       string `yaml:"wave"`
	Mask       string `yaml:"mask"`
	BinaryMask string `yaml:"binaryMask"`
}

// DefaultVarNames returns the BIOQIC variable names.
func DefaultVarNames() VarNames {
	return VarNames{
		Magnitude:  "magnitude",
		Phase:      "phase",
		Wave:       "u_ft",
		Mask:       "img_seg",
		BinaryMask: "img_seg_filled",
	}
}

// Sample is one MRE acquisition and the arrays derived from it.
type Sample struct {
	// Path is the MAT file holding the wave data.
	Path string

	// MaskPath and BinMaskPath are optional MAT files holding the region
	// segmentation and its filled binary version.
	MaskPath    string
	BinMaskPath string

	// StorageModFile and LossModFile are the NIfTI modulus images used by
	// CreateElastogram.
	StorageModFile string
	LossModFile    string

	// Frequency is the acquisition frequency in Hz.
	Frequency float64

	// Resolution is the voxel size in mm along x, y and z.
	Resolution []float64

	// Vars names the variables to read.
	Vars VarNames

	// Format and ReversedAxes describe the wave file after Load.
	Format       matfile.Format
	ReversedAxes bool

	// Arrays holds the labeled arrays after Load.
	Arrays *labeled.Dataset

	logger *zap.Logger
}

// Option configures a Sample.
type Option func(*Sample)

// WithLogger sets the logger used for progress and diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sample) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVarNames overrides the MAT variable names.
func WithVarNames(v VarNames) Option {
	return func(s *Sample) {
		def := DefaultVarNames()
		if v.Magnitude == "" {
			v.Magnitude = def.Magnitude
		}
		if v.Phase == "" {
			v.Phase = def.Phase
		}
		if v.Wave == "" {
			v.Wave = def.Wave
		}
		if v.Mask == "" {
			v.Mask = def.Mask
		}
		if v.BinaryMask == "" {
			v.BinaryMask = def.BinaryMask
		}
		s.Vars = v
	}
}

// WithMasks sets the region and binary mask files. Either may be empty.
func WithMasks(mask, binMask string) Option {
	return func(s *Sample) {
		s.MaskPath = mask
		s.BinMaskPath = binMask
	}
}

// New creates a sample for the MAT file at path. A nil resolution means
// 1 mm isotropic.
func New(path string, frequency float64, resolution []float64, opts ...Option) (*Sample, error) {
	if resolution == nil {
		resolution = []float64{1, 1, 1}
	}
	if len(resolution) != len(SpatialDims) {
		return nil, fmt.Errorf("resolution needs %d values, got %d", len(SpatialDims), len(resolution))
	}
	for i, r := range resolution {
		if r <= 0 {
			return nil, fmt.Errorf("resolution along %s must be positive, got %g", SpatialDims[i], r)
		}
	}

	s := &Sample{
		Path:       path,
		Frequency:  frequency,
		Resolution: append([]float64(nil), resolution...),
		Vars:       DefaultVarNames(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Wave returns the wave field, or nil before Load.
func (s *Sample) Wave() *labeled.DataArray {
	if s.Arrays == nil {
		return nil
	}
	w, _ := s.Arrays.Get(WaveArray)
	return w
}

// Load reads the MAT file and builds the complex wave field. Any previous
// arrays are discarded.
func (s *Sample) Load() error {
	s.logger.Info("loading sample", zap.String("path", s.Path))

	f, err := matfile.Load(s.Path)
	if err != nil {
		return err
	}
	s.Format = f.Format
	s.ReversedAxes = f.ReversedAxes
	s.describe(f)

	raw, err := s.rawWave(f)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	wave, err := s.AddMetadata(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}

	ds := labeled.NewDataset()
	ds.Attrs["source"] = s.Path
	ds.Attrs["format"] = f.Format.String()
	if err := ds.Assign(WaveArray, wave); err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	s.Arrays = ds

	s.logger.Debug("sample loaded", zap.Stringer("arrays", ds))
	return nil
}

func (s *Sample) describe(f *matfile.File) {
	ce := s.logger.Check(zapcore.DebugLevel, "mat file contents")
	if ce == nil {
		return
	}
	var b strings.Builder
	if err := f.Describe(&b, 1); err != nil {
		return
	}
	ce.Write(zap.String("path", f.Path), zap.String("format", f.Format.String()), zap.String("contents", b.String()))
}

// rawWave builds the unlabeled wave from the magnitude/phase pair, or from
// a stored complex wave when the pair is absent.
func (s *Sample) rawWave(f *matfile.File) (*labeled.DataArray, error) {
	if f.Has(s.Vars.Magnitude) && f.Has(s.Vars.Phase) {
		mag, _ := f.Var(s.Vars.Magnitude)
		ph, _ := f.Var(s.Vars.Phase)
		if mag.Real == nil || ph.Real == nil {
			return nil, fmt.Errorf("%w: %s and %s must be numeric", ErrNoWave, mag.Name, ph.Name)
		}
		return labeled.RawPolar(WaveArray, mag.Real, ph.Real)
	}

	if f.Has(s.Vars.Wave) {
		w, _ := f.Var(s.Vars.Wave)
		if w.Real == nil {
			return nil, fmt.Errorf("%w: %s is %s", ErrNoWave, w.Name, w.Class)
		}
		s.logger.Debug("using stored complex wave", zap.String("var", w.Name))
		if w.IsComplex() {
			return labeled.RawComplex(WaveArray, w.Real, w.Imag)
		}
		a, err := labeled.Raw(WaveArray, w.Real)
		if err != nil {
			return nil, err
		}
		a.Complex = true
		return a, nil
	}

	return nil, fmt.Errorf("%w: need %q and %q, or %q (have %s)", ErrNoWave,
		s.Vars.Magnitude, s.Vars.Phase, s.Vars.Wave, strings.Join(f.Names(), ", "))
}

// AddMetadata labels a raw wave array with the MATLAB axes and transposes it
// to the canonical order. Arrays with fewer than six axes get trailing
// singleton axes.
func (s *Sample) AddMetadata(raw *labeled.DataArray) (*labeled.DataArray, error) {
	if len(raw.Dims) > len(NativeDims) {
		return nil, fmt.Errorf("%w: wave has %d axes, at most %d expected", labeled.ErrShapeMismatch, len(raw.Dims), len(NativeDims))
	}
	a := raw
	for len(a.Dims) < len(NativeDims) {
		var err error
		if a, err = a.ExpandDims(fmt.Sprintf("pad_%d", len(a.Dims)), len(a.Dims)); err != nil {
			return nil, err
		}
	}
	a, err := a.Rename(NativeDims...)
	if err != nil {
		return nil, err
	}

	for i, d := range SpatialDims {
		if err := a.SetCoord(labeled.Range(d, a.Size(d), s.Resolution[i], "mm")); err != nil {
			return nil, err
		}
	}
	if n := a.Size("frequency"); n != 1 {
		return nil, fmt.Errorf("%w: frequency axis has %d entries, one acquisition frequency expected", labeled.ErrShapeMismatch, n)
	}
	if err := a.SetCoord(labeled.Scalar("frequency", s.Frequency, "Hz")); err != nil {
		return nil, err
	}
	n := a.Size("component")
	if n > len(componentLabels) {
		return nil, fmt.Errorf("%w: component axis has %d entries, at most %d expected", labeled.ErrShapeMismatch, n, len(componentLabels))
	}
	if err := a.SetCoord(labeled.Categorical("component", componentLabels[:n]...)); err != nil {
		return nil, err
	}
	if err := a.SetCoord(labeled.Range("timesteps", a.Size("timesteps"), 1, "")); err != nil {
		return nil, err
	}

	out, err := a.Transpose(CanonicalDims...)
	if err != nil {
		return nil, err
	}
	out.Attrs["long_name"] = "complex wave field"
	return out, nil
}
