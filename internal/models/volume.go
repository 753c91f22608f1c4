package models

import (
	"fmt"
)

// Volume represents a raw N-dimensional image volume as it comes off disk,
// before any labeling is applied.
type Volume struct {
	// Shape is the length of each axis, fastest-varying axis first.
	Shape []int

	// Data holds the voxel values in column-major (Fortran) order, the
	// native layout of both MATLAB and NIfTI files.
	Data []float64

	// VoxelSize is the physical size of each voxel in mm along the spatial
	// axes. It is nil when the source does not carry it.
	VoxelSize []float64
}

// NewVolume allocates a zero-filled volume with the given shape.
func NewVolume(shape ...int) *Volume {
	s := make([]int, len(shape))
	copy(s, shape)
	return &Volume{
		Shape: s,
		Data:  make([]float64, product(s)),
	}
}

// Len returns the total number of voxels.
func (v *Volume) Len() int {
	return product(v.Shape)
}

// Validate checks that the data length agrees with the shape.
func (v *Volume) Validate() error {
	for i, n := range v.Shape {
		if n < 0 {
			return fmt.Errorf("axis %d has negative length %d", i, n)
		}
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("volume data has %d values, shape %v needs %d", len(v.Data), v.Shape, v.Len())
	}
	return nil
}

// Offset converts an index tuple to the position in Data.
func (v *Volume) Offset(idx ...int) int {
	off, stride := 0, 1
	for i, n := range v.Shape {
		if i < len(idx) {
			off += idx[i] * stride
		}
		stride *= n
	}
	return off
}

// At returns the voxel at the given index tuple.
func (v *Volume) At(idx ...int) float64 {
	return v.Data[v.Offset(idx...)]
}

// Set stores a voxel value at the given index tuple.
func (v *Volume) Set(val float64, idx ...int) {
	v.Data[v.Offset(idx...)] = val
}

// SameShape reports whether two volumes have identical shapes.
func (v *Volume) SameShape(o *Volume) bool {
	if len(v.Shape) != len(o.Shape) {
		return false
	}
	for i := range v.Shape {
		if v.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// RowMajor returns a copy of the data in row-major (C) order over the same
// shape, i.e. with the last axis varying fastest.
func (v *Volume) RowMajor() []float64 {
	out := make([]float64, len(v.Data))
	n := len(v.Shape)
	if n == 0 {
		copy(out, v.Data)
		return out
	}

	idx := make([]int, n)
	for cm := range v.Data {
		// idx is the column-major counter; compute the row-major offset
		rm := 0
		for i := 0; i < n; i++ {
			rm = rm*v.Shape[i] + idx[i]
		}
		out[rm] = v.Data[cm]

		for i := 0; i < n; i++ {
			idx[i]++
			if idx[i] < v.Shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
