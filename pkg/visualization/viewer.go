package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"mrewave/pkg/labeled"
)

// Part selects which real quantity of a complex array is displayed.
type Part string

// Displayable parts.
const (
	Magnitude Part = "magnitude"
	Real      Part = "real"
	Imag      Part = "imag"
	Phase     Part = "phase"
)

// ParsePart validates a part name.
func ParsePart(s string) (Part, error) {
	switch p := Part(s); p {
	case Magnitude, Real, Imag, Phase:
		return p, nil
	}
	return "", fmt.Errorf("invalid part %q (must be magnitude, real, imag or phase)", s)
}

// Viewer renders 2D planes of a labeled array. Dimensions that are neither
// the row nor the column axis of a plane are held at the index set with
// Fix, or 0.
type Viewer struct {
	array  *labeled.DataArray
	part   Part
	values []float64
	fixed  map[string]int

	// lo and hi bound the displayed values over the whole array so that a
	// sequence of planes shares one gray scale.
	lo, hi float64
}

// NewViewer creates a viewer for one part of a.
func NewViewer(a *labeled.DataArray, part Part) (*Viewer, error) {
	if a.Len() == 0 {
		return nil, fmt.Errorf("array %s is empty", a.Name)
	}
	var vals []float64
	switch part {
	case Magnitude:
		vals = a.Abs()
	case Real:
		vals = a.Real()
	case Imag:
		vals = a.Imag()
	case Phase:
		vals = a.Angle()
	default:
		return nil, fmt.Errorf("invalid part %q", part)
	}
	return &Viewer{
		array:  a,
		part:   part,
		values: vals,
		fixed:  make(map[string]int),
		lo:     floats.Min(vals),
		hi:     floats.Max(vals),
	}, nil
}

// Fix holds dim at index idx for subsequent planes.
func (v *Viewer) Fix(dim string, idx int) error {
	n := v.array.Size(dim)
	if v.array.Axis(dim) < 0 {
		return fmt.Errorf("%w: %q", labeled.ErrUnknownDim, dim)
	}
	if idx < 0 || idx >= n {
		return fmt.Errorf("index %d out of range for %q of length %d", idx, dim, n)
	}
	v.fixed[dim] = idx
	return nil
}

// Plane is a 2D cut through the array.
type Plane struct {
	RowDim, ColDim string
	Rows, Cols     int
	// Values are row-major.
	Values []float64
	// RowTicks and ColTicks are the coordinate values, or indices.
	RowTicks, ColTicks []float64
}

// At returns the value at row r and column c.
func (p *Plane) At(r, c int) float64 { return p.Values[r*p.Cols+c] }

// ExtractPlane cuts the plane spanned by rowDim and colDim.
func (v *Viewer) ExtractPlane(rowDim, colDim string) (*Plane, error) {
	a := v.array
	ra, ca := a.Axis(rowDim), a.Axis(colDim)
	if ra < 0 || ca < 0 || ra == ca {
		return nil, fmt.Errorf("%w: plane %s x %s of %v", labeled.ErrUnknownDim, rowDim, colDim, a.Dims)
	}

	idx := make([]int, len(a.Dims))
	for i, d := range a.Dims {
		idx[i] = v.fixed[d]
	}

	p := &Plane{
		RowDim: rowDim,
		ColDim: colDim,
		Rows:   a.Shape[ra],
		Cols:   a.Shape[ca],
	}
	p.Values = make([]float64, p.Rows*p.Cols)
	for r := 0; r < p.Rows; r++ {
		idx[ra] = r
		for c := 0; c < p.Cols; c++ {
			idx[ca] = c
			p.Values[r*p.Cols+c] = v.values[a.Offset(idx...)]
		}
	}
	p.RowTicks = ticks(a, rowDim)
	p.ColTicks = ticks(a, colDim)
	return p, nil
}

func ticks(a *labeled.DataArray, dim string) []float64 {
	if c, ok := a.Coords[dim]; ok && !c.IsCategorical() {
		return append([]float64(nil), c.Values...)
	}
	out := make([]float64, a.Size(dim))
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

// ExtractSlice renders a plane as a 16-bit gray image, rows downwards and
// columns to the right.
func (v *Viewer) ExtractSlice(rowDim, colDim string) (image.Image, error) {
	p, err := v.ExtractPlane(rowDim, colDim)
	if err != nil {
		return nil, err
	}

	span := v.hi - v.lo
	img := image.NewGray16(image.Rect(0, 0, p.Cols, p.Rows))
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Cols; c++ {
			level := 0.0
			if span > 0 {
				level = (p.At(r, c) - v.lo) / span
			}
			value := uint16(math.Max(0, math.Min(65535, level*65535)))
			img.SetGray16(c, r, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence writes one PNG per position along axis, each showing the
// rowDim x colDim plane.
func (v *Viewer) SaveSliceSequence(axis, rowDim, colDim, outputDir string) error {
	n := v.array.Size(axis)
	if v.array.Axis(axis) < 0 || axis == rowDim || axis == colDim {
		return fmt.Errorf("invalid axis: %s (must be a dimension of %v other than %s and %s)", axis, v.array.Dims, rowDim, colDim)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	saved, had := v.fixed[axis]
	defer func() {
		if had {
			v.fixed[axis] = saved
		} else {
			delete(v.fixed, axis)
		}
	}()

	for pos := 0; pos < n; pos++ {
		v.fixed[axis] = pos
		img, err := v.ExtractSlice(rowDim, colDim)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%s_%03d.png", v.array.Name, v.part, axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// planeGrid adapts a Plane to plotter.GridXYZ with columns on the x axis.
type planeGrid struct{ p *Plane }

func (g planeGrid) Dims() (c, r int)   { return g.p.Cols, g.p.Rows }
func (g planeGrid) Z(c, r int) float64 { return g.p.At(r, c) }
func (g planeGrid) X(c int) float64    { return g.p.ColTicks[c] }
func (g planeGrid) Y(r int) float64    { return g.p.RowTicks[r] }

// SaveHeatmap renders the rowDim x colDim plane as a heat map with axis
// labels taken from the coordinates. The format follows the file extension.
func (v *Viewer) SaveHeatmap(rowDim, colDim, filename string) error {
	p, err := v.ExtractPlane(rowDim, colDim)
	if err != nil {
		return err
	}

	plt := plot.New()
	plt.Title.Text = fmt.Sprintf("%s (%s)", v.array.Name, v.part)
	plt.X.Label.Text = axisLabel(v.array, colDim)
	plt.Y.Label.Text = axisLabel(v.array, rowDim)

	hm := plotter.NewHeatMap(planeGrid{p}, palette.Heat(64, 1))
	hm.Min, hm.Max = v.lo, v.hi
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}
	plt.Add(hm)

	if err := plt.Save(6*vg.Inch, 5*vg.Inch, filename); err != nil {
		return fmt.Errorf("save heat map %s: %w", filename, err)
	}
	return nil
}

func axisLabel(a *labeled.DataArray, dim string) string {
	if c, ok := a.Coords[dim]; ok && c.Units != "" {
		return fmt.Sprintf("%s [%s]", dim, c.Units)
	}
	return dim
}
