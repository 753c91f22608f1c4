package labeled

import (
	"fmt"
)

// assignment orders, from most to least preferred
const (
	orderNative = iota
	orderReversed
	orderMixed

	// added when an extra dimension sits before a reference dimension
	extrasLeading = orderMixed + 1
)

type target struct {
	dim   string
	size  int
	extra bool
	pos   int // position among reference dims, or among extras
}

// AlignLike places an unlabeled array onto the coordinate system of like.
//
// The raw array's own axis order is not trusted. Axes of length one are
// dropped, then every remaining axis is assigned to a dimension of like
// (or, failing that, to one of the extra coordinates) with the same
// length. Assignments that place every extra axis after the reference axes
// are preferred. Within that, assignments that keep the raw axes in like's
// order come first, then assignments in exactly reversed order, then any
// size-consistent assignment.
//
// The result carries like's matched dimensions in like's order, followed by
// the matched extra dimensions. Length-one dimensions of like are kept so
// that scalar coordinates such as the acquisition frequency survive; longer
// dimensions of like without a matching raw axis are left out, and the
// result broadcasts over them. A raw axis that matches nothing is an
// ErrShapeMismatch.
func AlignLike(raw, like *DataArray, extra ...Coordinate) (*DataArray, error) {
	// squeeze: dropping length-one axes leaves row-major data untouched
	var shape []int
	for _, n := range raw.Shape {
		if n != 1 {
			shape = append(shape, n)
		}
	}

	targets := make([]target, 0, len(like.Dims)+len(extra))
	for i, d := range like.Dims {
		targets = append(targets, target{dim: d, size: like.Shape[i], pos: i})
	}
	for i, c := range extra {
		if like.Axis(c.Dim) >= 0 {
			continue
		}
		targets = append(targets, target{dim: c.Dim, size: c.Len(), extra: true, pos: i})
	}

	assign, ok := bestAssignment(shape, targets)
	if !ok {
		return nil, fmt.Errorf("%w: cannot align %s %v onto %v %v", ErrShapeMismatch, raw.Name, raw.Shape, like.Dims, like.Shape)
	}

	// target index -> raw axis
	owner := make(map[int]int, len(assign))
	for axis, t := range assign {
		owner[t] = axis
	}

	var dims []string
	var perm []int
	var singletons []int // positions in dims of kept length-one reference dims
	for ti, t := range targets {
		if t.extra {
			continue
		}
		if axis, ok := owner[ti]; ok {
			dims = append(dims, t.dim)
			perm = append(perm, axis)
		} else if t.size == 1 {
			singletons = append(singletons, len(dims))
			dims = append(dims, t.dim)
		}
	}
	for ti, t := range targets {
		if !t.extra {
			continue
		}
		if axis, ok := owner[ti]; ok {
			dims = append(dims, t.dim)
			perm = append(perm, axis)
		}
	}

	data, moved := permute(raw.Data, shape, perm)

	outShape := make([]int, 0, len(dims))
	next := 0
	for i := range dims {
		if len(singletons) > 0 && singletons[0] == i {
			singletons = singletons[1:]
			outShape = append(outShape, 1)
			continue
		}
		outShape = append(outShape, moved[next])
		next++
	}

	out := &DataArray{
		Name:    raw.Name,
		Dims:    dims,
		Shape:   outShape,
		Coords:  make(map[string]Coordinate),
		Data:    data,
		Complex: raw.Complex,
		Attrs:   make(map[string]string, len(raw.Attrs)),
	}
	for k, v := range raw.Attrs {
		out.Attrs[k] = v
	}
	for _, d := range dims {
		if c, ok := like.Coords[d]; ok {
			out.Coords[d] = c.clone()
			continue
		}
		for _, c := range extra {
			if c.Dim == d {
				out.Coords[d] = c.clone()
			}
		}
	}
	return out, nil
}

// bestAssignment maps each raw axis to a distinct target of equal size,
// choosing the most preferred order class and, within a class, the first
// assignment found in lexicographic order.
func bestAssignment(shape []int, targets []target) ([]int, bool) {
	var best []int
	found := false
	bestRank := extrasLeading + orderMixed + 1

	cur := make([]int, len(shape))
	used := make([]bool, len(targets))
	var search func(axis int)
	search = func(axis int) {
		if bestRank == orderNative {
			return
		}
		if axis == len(shape) {
			if r := rank(cur, targets); r < bestRank {
				bestRank = r
				best = make([]int, len(cur))
				copy(best, cur)
				found = true
			}
			return
		}
		for ti, t := range targets {
			if used[ti] || t.size != shape[axis] {
				continue
			}
			used[ti] = true
			cur[axis] = ti
			search(axis + 1)
			used[ti] = false
		}
	}
	search(0)
	return best, found
}

// rank classifies an assignment by the order of the reference dimensions
// it uses, pushed down a tier when an extra dimension precedes any of them.
func rank(assign []int, targets []target) int {
	var seq []int
	seenExtra, leading := false, false
	for _, ti := range assign {
		if targets[ti].extra {
			seenExtra = true
			continue
		}
		if seenExtra {
			leading = true
		}
		seq = append(seq, targets[ti].pos)
	}
	increasing, decreasing := true, true
	for i := 1; i < len(seq); i++ {
		if seq[i] < seq[i-1] {
			increasing = false
		}
		if seq[i] > seq[i-1] {
			decreasing = false
		}
	}
	r := orderMixed
	switch {
	case increasing:
		r = orderNative
	case decreasing:
		r = orderReversed
	}
	if leading {
		r += extrasLeading
	}
	return r
}
