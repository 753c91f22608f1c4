package labeled

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// coordTol is the tolerance used when comparing coordinate values.
const coordTol = 1e-9

// Coordinate labels one dimension of an array.
type Coordinate struct {
	// Dim is the name of the dimension the coordinate indexes.
	Dim string

	// Values are the numeric tick values along the dimension.
	Values []float64

	// Labels, when set, are categorical tick names (e.g. the wave
	// component axis). Values then hold the label positions.
	Labels []string

	// Units describes Values, e.g. "mm" or "Hz".
	Units string
}

// Range returns a coordinate with values index*step for n ticks.
func Range(dim string, n int, step float64, units string) Coordinate {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i) * step
	}
	return Coordinate{Dim: dim, Values: vals, Units: units}
}

// Categorical returns a coordinate whose ticks are the given labels.
func Categorical(dim string, labels ...string) Coordinate {
	vals := make([]float64, len(labels))
	for i := range vals {
		vals[i] = float64(i)
	}
	return Coordinate{Dim: dim, Values: vals, Labels: append([]string(nil), labels...)}
}

// Scalar returns a single-tick coordinate.
func Scalar(dim string, value float64, units string) Coordinate {
	return Coordinate{Dim: dim, Values: []float64{value}, Units: units}
}

// Len returns the number of ticks.
func (c Coordinate) Len() int { return len(c.Values) }

// IsCategorical reports whether the coordinate carries labels.
func (c Coordinate) IsCategorical() bool { return c.Labels != nil }

// Slice returns the ticks in [start, stop).
func (c Coordinate) Slice(start, stop int) Coordinate {
	out := Coordinate{Dim: c.Dim, Units: c.Units}
	out.Values = append([]float64(nil), c.Values[start:stop]...)
	if c.Labels != nil {
		out.Labels = append([]string(nil), c.Labels[start:stop]...)
	}
	return out
}

// Index returns the position of the tick closest to value, and whether it
// lies within tol of it.
func (c Coordinate) Index(value, tol float64) (int, bool) {
	if len(c.Values) == 0 {
		return -1, false
	}
	i := floats.NearestIdx(c.Values, value)
	d := c.Values[i] - value
	if d < 0 {
		d = -d
	}
	return i, d <= tol
}

// Equal reports whether two coordinates have the same ticks.
func (c Coordinate) Equal(o Coordinate) bool {
	if c.Dim != o.Dim || len(c.Values) != len(o.Values) || len(c.Labels) != len(o.Labels) {
		return false
	}
	if !floats.EqualApprox(c.Values, o.Values, coordTol) {
		return false
	}
	for i := range c.Labels {
		if c.Labels[i] != o.Labels[i] {
			return false
		}
	}
	return true
}

func (c Coordinate) clone() Coordinate {
	return c.Slice(0, len(c.Values))
}

func (c Coordinate) String() string {
	if c.Labels != nil {
		return fmt.Sprintf("%s (%d) %v", c.Dim, len(c.Labels), c.Labels)
	}
	if len(c.Values) == 0 {
		return fmt.Sprintf("%s (0)", c.Dim)
	}
	return fmt.Sprintf("%s (%d) %g .. %g %s", c.Dim, len(c.Values), c.Values[0], c.Values[len(c.Values)-1], c.Units)
}
