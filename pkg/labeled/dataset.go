package labeled

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Dataset is an ordered collection of named arrays that share one
// coordinate system: every array using a dimension agrees on its length
// and ticks.
type Dataset struct {
	// Attrs carries global metadata.
	Attrs map[string]string

	coords    map[string]Coordinate
	dims      []string
	sizes     map[string]int
	vars      map[string]*DataArray
	order     []string
	coordVars map[string]bool
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Attrs:     make(map[string]string),
		coords:    make(map[string]Coordinate),
		sizes:     make(map[string]int),
		vars:      make(map[string]*DataArray),
		coordVars: make(map[string]bool),
	}
}

// Assign stores arr under name, replacing any previous array of that name.
// Dimensions already known to the dataset must agree in length and
// coordinates; new dimensions are added.
func (d *Dataset) Assign(name string, arr *DataArray) error {
	for i, dim := range arr.Dims {
		if n, ok := d.sizes[dim]; ok && n != arr.Shape[i] {
			return fmt.Errorf("%w: %s.%s has length %d, dataset has %d", ErrCoordinateConflict, name, dim, arr.Shape[i], n)
		}
		c, has := arr.Coords[dim]
		known, ok := d.coords[dim]
		if has && ok && !c.Equal(known) {
			return fmt.Errorf("%w: %s.%s ticks differ from the dataset's", ErrCoordinateConflict, name, dim)
		}
	}

	for i, dim := range arr.Dims {
		if _, ok := d.sizes[dim]; !ok {
			d.sizes[dim] = arr.Shape[i]
			d.dims = append(d.dims, dim)
		}
		if c, ok := arr.Coords[dim]; ok {
			if _, known := d.coords[dim]; !known {
				d.coords[dim] = c.clone()
			}
		}
	}

	arr.Name = name
	if _, ok := d.vars[name]; !ok {
		d.order = append(d.order, name)
	}
	d.vars[name] = arr
	return nil
}

// Get returns the named array.
func (d *Dataset) Get(name string) (*DataArray, bool) {
	a, ok := d.vars[name]
	return a, ok
}

// Has reports whether an array of that name exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.vars[name]
	return ok
}

// Names returns the data variables in insertion order. Arrays promoted to
// coordinates are not included.
func (d *Dataset) Names() []string {
	var out []string
	for _, n := range d.order {
		if !d.coordVars[n] {
			out = append(out, n)
		}
	}
	return out
}

// AllNames returns every array in insertion order, including coordinate
// arrays.
func (d *Dataset) AllNames() []string {
	return append([]string(nil), d.order...)
}

// AssignCoords promotes an existing array to a non-index coordinate, as
// done for the region mask so that it travels with every selection.
func (d *Dataset) AssignCoords(name string) error {
	if _, ok := d.vars[name]; !ok {
		return fmt.Errorf("%w: no array %q to promote", ErrUnknownDim, name)
	}
	d.coordVars[name] = true
	return nil
}

// IsCoord reports whether the named array was promoted to a coordinate.
func (d *Dataset) IsCoord(name string) bool {
	return d.coordVars[name]
}

// Dims returns the dataset dimensions in first-seen order.
func (d *Dataset) Dims() []string {
	return append([]string(nil), d.dims...)
}

// Size returns the length of a dimension, or 0.
func (d *Dataset) Size(dim string) int {
	return d.sizes[dim]
}

// Coord returns the index coordinate of a dimension.
func (d *Dataset) Coord(dim string) (Coordinate, bool) {
	c, ok := d.coords[dim]
	return c, ok
}

// Map applies fn to every array and collects the results in a new dataset
// with the same attributes and coordinate promotions.
func (d *Dataset) Map(fn func(name string, a *DataArray) (*DataArray, error)) (*Dataset, error) {
	out := NewDataset()
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	for _, name := range d.order {
		a, err := fn(name, d.vars[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := out.Assign(name, a); err != nil {
			return nil, err
		}
		if d.coordVars[name] {
			out.coordVars[name] = true
		}
	}
	return out, nil
}

// String renders a summary similar to an xarray repr.
func (d *Dataset) String() string {
	var b strings.Builder
	b.WriteString("<Dataset>\nDimensions: (")
	parts := make([]string, len(d.dims))
	for i, dim := range d.dims {
		parts[i] = fmt.Sprintf("%s: %d", dim, d.sizes[dim])
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(")\nCoordinates:\n")
	for _, dim := range d.dims {
		if c, ok := d.coords[dim]; ok {
			fmt.Fprintf(&b, "  * %s\n", c)
		}
	}
	for _, name := range d.order {
		if d.coordVars[name] {
			fmt.Fprintf(&b, "    %s\n", summarize(d.vars[name]))
		}
	}
	b.WriteString("Data variables:\n")
	for _, name := range d.Names() {
		fmt.Fprintf(&b, "    %s\n", summarize(d.vars[name]))
	}
	if len(d.Attrs) > 0 {
		b.WriteString("Attributes:\n")
		keys := make([]string, 0, len(d.Attrs))
		for k := range d.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s: %s\n", k, d.Attrs[k])
		}
	}
	return b.String()
}

func summarize(a *DataArray) string {
	kind := "float64"
	vals := a.Real()
	if a.Complex {
		kind = "complex128"
		vals = a.Abs()
	}
	mean, std := 0.0, 0.0
	if len(vals) > 0 {
		mean, std = stat.MeanStdDev(vals, nil)
	}
	return fmt.Sprintf("%-16s (%s) %s |mean| %.4g std %.4g", a.Name, strings.Join(a.Dims, ", "), kind, mean, std)
}
