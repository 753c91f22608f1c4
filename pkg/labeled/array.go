// Package labeled implements N-dimensional arrays with named dimensions and
// coordinate ticks, plus the dataset container that groups arrays sharing a
// coordinate system.
//
// Arrays store complex128 values in row-major order over their dimensions.
// Real-valued arrays (masks, magnitudes) use the same storage with a zero
// imaginary part and Complex set to false.
package labeled

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/cmplxs"

	"mrewave/internal/models"
)

var (
	// ErrShapeMismatch is returned when array shapes cannot be reconciled.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnknownDim is returned when an operation names a dimension the
	// array does not have.
	ErrUnknownDim = errors.New("unknown dimension")

	// ErrCoordinateConflict is returned when two arrays disagree on the
	// coordinates of a shared dimension.
	ErrCoordinateConflict = errors.New("coordinate conflict")
)

// DataArray is a labeled N-dimensional array.
type DataArray struct {
	// Name identifies the array inside a Dataset.
	Name string

	// Dims names each axis, outermost first.
	Dims []string

	// Shape is the length of each axis.
	Shape []int

	// Coords holds the tick values for dimensions that have them.
	Coords map[string]Coordinate

	// Data holds the values in row-major order.
	Data []complex128

	// Complex is false for real-valued arrays.
	Complex bool

	// Attrs carries free-form metadata such as units.
	Attrs map[string]string
}

// New allocates a zero-filled array. Coordinates are optional; when given
// they must match the shape.
func New(name string, dims []string, shape []int, coords ...Coordinate) (*DataArray, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("%w: %d dims for %d-d shape", ErrShapeMismatch, len(dims), len(shape))
	}
	a := &DataArray{
		Name:   name,
		Dims:   append([]string(nil), dims...),
		Shape:  append([]int(nil), shape...),
		Coords: make(map[string]Coordinate),
		Data:   make([]complex128, product(shape)),
		Attrs:  make(map[string]string),
	}
	for _, c := range coords {
		if err := a.SetCoord(c); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Raw wraps a column-major volume as an unlabeled array with placeholder
// dimension names dim_0, dim_1, ...
func Raw(name string, v *models.Volume) (*DataArray, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	a, err := New(name, rawDims(len(v.Shape)), v.Shape)
	if err != nil {
		return nil, err
	}
	for i, x := range v.RowMajor() {
		a.Data[i] = complex(x, 0)
	}
	return a, nil
}

// RawPolar builds an unlabeled complex array magnitude*exp(i*phase) from
// two column-major volumes of identical shape.
func RawPolar(name string, magnitude, phase *models.Volume) (*DataArray, error) {
	if !magnitude.SameShape(phase) {
		return nil, fmt.Errorf("%w: %s magnitude %v vs phase %v", ErrShapeMismatch, name, magnitude.Shape, phase.Shape)
	}
	if err := magnitude.Validate(); err != nil {
		return nil, fmt.Errorf("%s magnitude: %w", name, err)
	}
	if err := phase.Validate(); err != nil {
		return nil, fmt.Errorf("%s phase: %w", name, err)
	}

	a, err := New(name, rawDims(len(magnitude.Shape)), magnitude.Shape)
	if err != nil {
		return nil, err
	}
	mag, ph := magnitude.RowMajor(), phase.RowMajor()
	for i := range a.Data {
		a.Data[i] = cmplx.Rect(mag[i], ph[i])
	}
	a.Complex = true
	return a, nil
}

// RawComplex builds an unlabeled complex array from real and imaginary
// volumes of identical shape.
func RawComplex(name string, re, im *models.Volume) (*DataArray, error) {
	if !re.SameShape(im) {
		return nil, fmt.Errorf("%w: %s real %v vs imaginary %v", ErrShapeMismatch, name, re.Shape, im.Shape)
	}
	a, err := New(name, rawDims(len(re.Shape)), re.Shape)
	if err != nil {
		return nil, err
	}
	cmplxs.Complex(a.Data, re.RowMajor(), im.RowMajor())
	a.Complex = true
	return a, nil
}

func rawDims(n int) []string {
	dims := make([]string, n)
	for i := range dims {
		dims[i] = fmt.Sprintf("dim_%d", i)
	}
	return dims
}

// Rename returns a shallow copy with new dimension names, which must be
// given for every axis. Existing coordinates are dropped.
func (a *DataArray) Rename(dims ...string) (*DataArray, error) {
	if len(dims) != len(a.Dims) {
		return nil, fmt.Errorf("%w: %d names for %d-d array", ErrShapeMismatch, len(dims), len(a.Dims))
	}
	out := a.shallow()
	out.Dims = append([]string(nil), dims...)
	out.Coords = make(map[string]Coordinate)
	return out, nil
}

// SetCoord attaches a coordinate to one of the array's dimensions.
func (a *DataArray) SetCoord(c Coordinate) error {
	ax := a.Axis(c.Dim)
	if ax < 0 {
		return fmt.Errorf("%w: %q not in %v", ErrUnknownDim, c.Dim, a.Dims)
	}
	if c.Len() != a.Shape[ax] {
		return fmt.Errorf("%w: coordinate %q has %d ticks, axis has %d", ErrShapeMismatch, c.Dim, c.Len(), a.Shape[ax])
	}
	a.Coords[c.Dim] = c
	return nil
}

// Axis returns the position of dim, or -1.
func (a *DataArray) Axis(dim string) int {
	for i, d := range a.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Size returns the length of dim, or 0 if the array does not have it.
func (a *DataArray) Size(dim string) int {
	if ax := a.Axis(dim); ax >= 0 {
		return a.Shape[ax]
	}
	return 0
}

// Len returns the number of elements.
func (a *DataArray) Len() int { return len(a.Data) }

// Offset converts an index tuple to a position in Data.
func (a *DataArray) Offset(idx ...int) int {
	off := 0
	for i, n := range a.Shape {
		off *= n
		if i < len(idx) {
			off += idx[i]
		}
	}
	return off
}

// At returns the element at the given index tuple.
func (a *DataArray) At(idx ...int) complex128 {
	return a.Data[a.Offset(idx...)]
}

// Set stores a value at the given index tuple.
func (a *DataArray) Set(v complex128, idx ...int) {
	a.Data[a.Offset(idx...)] = v
}

// Real returns the real parts.
func (a *DataArray) Real() []float64 {
	return cmplxs.Real(make([]float64, len(a.Data)), a.Data)
}

// Imag returns the imaginary parts.
func (a *DataArray) Imag() []float64 {
	return cmplxs.Imag(make([]float64, len(a.Data)), a.Data)
}

// Abs returns the magnitudes.
func (a *DataArray) Abs() []float64 {
	out := make([]float64, len(a.Data))
	cmplxs.Abs(out, a.Data)
	return out
}

// Angle returns the phases in radians.
func (a *DataArray) Angle() []float64 {
	out := make([]float64, len(a.Data))
	for i, v := range a.Data {
		out[i] = cmplx.Phase(v)
	}
	return out
}

// shallow copies the metadata and shares Data.
func (a *DataArray) shallow() *DataArray {
	out := &DataArray{
		Name:    a.Name,
		Dims:    append([]string(nil), a.Dims...),
		Shape:   append([]int(nil), a.Shape...),
		Coords:  make(map[string]Coordinate, len(a.Coords)),
		Data:    a.Data,
		Complex: a.Complex,
		Attrs:   make(map[string]string, len(a.Attrs)),
	}
	for k, c := range a.Coords {
		out.Coords[k] = c.clone()
	}
	for k, v := range a.Attrs {
		out.Attrs[k] = v
	}
	return out
}

func (a *DataArray) String() string {
	parts := make([]string, len(a.Dims))
	for i, d := range a.Dims {
		parts[i] = fmt.Sprintf("%s: %d", d, a.Shape[i])
	}
	kind := "float64"
	if a.Complex {
		kind = "complex128"
	}
	return fmt.Sprintf("<DataArray %q (%s) %s>", a.Name, strings.Join(parts, ", "), kind)
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// strides returns row-major strides for shape.
func strides(shape []int) []int {
	st := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = s
		s *= shape[i]
	}
	return st
}
