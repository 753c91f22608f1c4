package labeled

import (
	"fmt"

	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/floats"
)

// Reducer collapses a block of values to one value.
type Reducer func(vals []complex128) complex128

// ReduceMean is the arithmetic mean.
func ReduceMean(vals []complex128) complex128 {
	if len(vals) == 0 {
		return 0
	}
	return cmplxs.Sum(vals) / complex(float64(len(vals)), 0)
}

// ReduceMax picks the value with the largest real part. It is meant for
// label masks, where the real part carries the label.
func ReduceMax(vals []complex128) complex128 {
	if len(vals) == 0 {
		return 0
	}
	re := cmplxs.Real(make([]float64, len(vals)), vals)
	return vals[floats.MaxIdx(re)]
}

// permute reorders the axes of row-major data so that output axis k is
// input axis perm[k].
func permute(data []complex128, shape, perm []int) ([]complex128, []int) {
	n := len(shape)
	outShape := make([]int, n)
	for k, p := range perm {
		outShape[k] = shape[p]
	}
	inStrides := strides(shape)
	// stride in the input for each output axis
	step := make([]int, n)
	for k, p := range perm {
		step[k] = inStrides[p]
	}

	out := make([]complex128, len(data))
	idx := make([]int, n)
	src := 0
	for o := range out {
		out[o] = data[src]
		for k := n - 1; k >= 0; k-- {
			idx[k]++
			src += step[k]
			if idx[k] < outShape[k] {
				break
			}
			src -= step[k] * outShape[k]
			idx[k] = 0
		}
	}
	return out, outShape
}

// Transpose reorders the axes to the given dimension order, which must name
// every dimension exactly once.
func (a *DataArray) Transpose(order ...string) (*DataArray, error) {
	if len(order) != len(a.Dims) {
		return nil, fmt.Errorf("%w: transpose to %v from %v", ErrUnknownDim, order, a.Dims)
	}
	perm := make([]int, len(order))
	seen := make(map[string]bool, len(order))
	for k, d := range order {
		ax := a.Axis(d)
		if ax < 0 || seen[d] {
			return nil, fmt.Errorf("%w: transpose to %v from %v", ErrUnknownDim, order, a.Dims)
		}
		seen[d] = true
		perm[k] = ax
	}

	out := a.shallow()
	out.Data, out.Shape = permute(a.Data, a.Shape, perm)
	out.Dims = append([]string(nil), order...)
	return out, nil
}

// Reduce collapses the named dimensions with r.
func (a *DataArray) Reduce(r Reducer, dims ...string) (*DataArray, error) {
	drop := make(map[int]bool, len(dims))
	for _, d := range dims {
		ax := a.Axis(d)
		if ax < 0 {
			return nil, fmt.Errorf("%w: %q not in %v", ErrUnknownDim, d, a.Dims)
		}
		drop[ax] = true
	}

	var keptDims []string
	var keptShape, keptAxes []int
	for i, d := range a.Dims {
		if !drop[i] {
			keptDims = append(keptDims, d)
			keptShape = append(keptShape, a.Shape[i])
			keptAxes = append(keptAxes, i)
		}
	}

	// Move the reduced axes innermost so each output cell reads one
	// contiguous block.
	perm := append([]int(nil), keptAxes...)
	for i := range a.Dims {
		if drop[i] {
			perm = append(perm, i)
		}
	}
	moved, _ := permute(a.Data, a.Shape, perm)

	outLen := product(keptShape)
	block := 1
	if outLen > 0 {
		block = len(moved) / outLen
	}

	out := &DataArray{
		Name:    a.Name,
		Dims:    keptDims,
		Shape:   keptShape,
		Coords:  make(map[string]Coordinate),
		Data:    make([]complex128, outLen),
		Complex: a.Complex,
		Attrs:   make(map[string]string, len(a.Attrs)),
	}
	for i := range out.Data {
		out.Data[i] = r(moved[i*block : (i+1)*block])
	}
	for _, d := range keptDims {
		if c, ok := a.Coords[d]; ok {
			out.Coords[d] = c.clone()
		}
	}
	for k, v := range a.Attrs {
		out.Attrs[k] = v
	}
	return out, nil
}

// Mean averages over the named dimensions.
func (a *DataArray) Mean(dims ...string) (*DataArray, error) {
	return a.Reduce(ReduceMean, dims...)
}

// Isel selects positions [start, stop) along dim.
func (a *DataArray) Isel(dim string, start, stop int) (*DataArray, error) {
	ax := a.Axis(dim)
	if ax < 0 {
		return nil, fmt.Errorf("%w: %q not in %v", ErrUnknownDim, dim, a.Dims)
	}
	if start < 0 || stop > a.Shape[ax] || start >= stop {
		return nil, fmt.Errorf("invalid range [%d, %d) for %q of length %d", start, stop, dim, a.Shape[ax])
	}

	outer := product(a.Shape[:ax])
	inner := product(a.Shape[ax+1:])
	n := stop - start

	out := a.shallow()
	out.Shape[ax] = n
	out.Data = make([]complex128, 0, outer*n*inner)
	for o := 0; o < outer; o++ {
		base := o * a.Shape[ax] * inner
		out.Data = append(out.Data, a.Data[base+start*inner:base+stop*inner]...)
	}
	if c, ok := a.Coords[dim]; ok {
		out.Coords[dim] = c.Slice(start, stop)
	}
	return out, nil
}

// Sel selects the single tick of dim whose coordinate equals value. The
// dimension is kept with length one.
func (a *DataArray) Sel(dim string, value float64) (*DataArray, error) {
	c, ok := a.Coords[dim]
	if !ok {
		return nil, fmt.Errorf("%w: no coordinate for %q", ErrUnknownDim, dim)
	}
	i, ok := c.Index(value, coordTol)
	if !ok {
		return nil, fmt.Errorf("%g not found in coordinate %q", value, dim)
	}
	return a.Isel(dim, i, i+1)
}

// Coarsen reduces non-overlapping blocks of factors[dim] ticks along each
// named dimension with r. Ticks that do not fill a whole block at the end
// of an axis are trimmed. Coordinates are averaged per block; categorical
// coordinates keep the first label of each block.
func (a *DataArray) Coarsen(factors map[string]int, r Reducer) (*DataArray, error) {
	f := make([]int, len(a.Dims))
	outShape := make([]int, len(a.Dims))
	for i := range a.Dims {
		f[i] = 1
	}
	for d, k := range factors {
		ax := a.Axis(d)
		if ax < 0 {
			return nil, fmt.Errorf("%w: %q not in %v", ErrUnknownDim, d, a.Dims)
		}
		if k < 1 {
			return nil, fmt.Errorf("coarsen factor for %q must be positive, got %d", d, k)
		}
		f[ax] = k
	}
	for i, n := range a.Shape {
		outShape[i] = n / f[i]
		if outShape[i] == 0 {
			return nil, fmt.Errorf("%w: %q of length %d is shorter than factor %d", ErrShapeMismatch, a.Dims[i], n, f[i])
		}
	}

	outLen := product(outShape)
	blockLen := product(f)
	buckets := make([][]complex128, outLen)
	for i := range buckets {
		buckets[i] = make([]complex128, 0, blockLen)
	}

	n := len(a.Shape)
	outStrides := strides(outShape)
	idx := make([]int, n)
	for src := range a.Data {
		o, inside := 0, true
		for k := 0; k < n; k++ {
			q := idx[k] / f[k]
			if q >= outShape[k] {
				inside = false
				break
			}
			o += q * outStrides[k]
		}
		if inside {
			buckets[o] = append(buckets[o], a.Data[src])
		}
		for k := n - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < a.Shape[k] {
				break
			}
			idx[k] = 0
		}
	}

	out := a.shallow()
	out.Shape = outShape
	out.Data = make([]complex128, outLen)
	for i, b := range buckets {
		out.Data[i] = r(b)
	}
	for i, d := range a.Dims {
		c, ok := a.Coords[d]
		if !ok || f[i] == 1 {
			continue
		}
		nc := Coordinate{Dim: d, Units: c.Units, Values: make([]float64, outShape[i])}
		if c.Labels != nil {
			nc.Labels = make([]string, outShape[i])
		}
		for j := range nc.Values {
			block := c.Values[j*f[i] : (j+1)*f[i]]
			nc.Values[j] = floats.Sum(block) / float64(len(block))
			if c.Labels != nil {
				nc.Labels[j] = c.Labels[j*f[i]]
			}
		}
		out.Coords[d] = nc
	}
	return out, nil
}

// ExpandDims inserts a length-one dimension at position axis.
func (a *DataArray) ExpandDims(dim string, axis int) (*DataArray, error) {
	if a.Axis(dim) >= 0 {
		return nil, fmt.Errorf("dimension %q already present", dim)
	}
	if axis < 0 || axis > len(a.Dims) {
		return nil, fmt.Errorf("cannot insert axis %d into %d-d array", axis, len(a.Dims))
	}
	out := a.shallow()
	out.Dims = append(append(append([]string(nil), a.Dims[:axis]...), dim), a.Dims[axis:]...)
	out.Shape = append(append(append([]int(nil), a.Shape[:axis]...), 1), a.Shape[axis:]...)
	return out, nil
}
