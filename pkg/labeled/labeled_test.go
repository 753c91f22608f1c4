package labeled

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrewave/internal/models"
)

// iota3 returns a real array whose value encodes its index (100i+10j+k).
func iota3(t *testing.T, dims []string, shape []int) *DataArray {
	t.Helper()
	a, err := New("a", dims, shape)
	require.NoError(t, err)
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			for k := 0; k < shape[2]; k++ {
				a.Set(complex(float64(100*i+10*j+k), 0), i, j, k)
			}
		}
	}
	return a
}

func TestRawPolar(t *testing.T) {
	mag := models.NewVolume(2, 3)
	ph := models.NewVolume(2, 3)
	for i := range mag.Data {
		mag.Data[i] = float64(i + 1)
		ph.Data[i] = float64(i) * 0.3
	}

	a, err := RawPolar("wave", mag, ph)
	require.NoError(t, err)
	assert.True(t, a.Complex)
	assert.Equal(t, []int{2, 3}, a.Shape)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			want := complex(mag.At(i, j), 0) * cmplx.Exp(complex(0, ph.At(i, j)))
			got := a.At(i, j)
			assert.InDelta(t, real(want), real(got), 1e-12)
			assert.InDelta(t, imag(want), imag(got), 1e-12)
		}
	}

	_, err = RawPolar("wave", mag, models.NewVolume(3, 2))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestRawComplex(t *testing.T) {
	re := models.NewVolume(2, 2)
	im := models.NewVolume(2, 2)
	re.Set(1, 1, 0)
	im.Set(2, 1, 0)
	a, err := RawComplex("u", re, im)
	require.NoError(t, err)
	assert.Equal(t, complex(1, 2), a.At(1, 0))
}

func TestTranspose(t *testing.T) {
	a := iota3(t, []string{"x", "y", "z"}, []int{2, 3, 4})
	require.NoError(t, a.SetCoord(Range("y", 3, 2, "mm")))

	b, err := a.Transpose("z", "x", "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y"}, b.Dims)
	assert.Equal(t, []int{4, 2, 3}, b.Shape)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				assert.Equal(t, a.At(i, j, k), b.At(k, i, j))
			}
		}
	}
	assert.Equal(t, []float64{0, 2, 4}, b.Coords["y"].Values)

	_, err = a.Transpose("x", "y")
	assert.True(t, errors.Is(err, ErrUnknownDim))
	_, err = a.Transpose("x", "y", "q")
	assert.True(t, errors.Is(err, ErrUnknownDim))
	_, err = a.Transpose("x", "x", "y")
	assert.True(t, errors.Is(err, ErrUnknownDim))
}

func TestMean(t *testing.T) {
	a := iota3(t, []string{"x", "y", "z"}, []int{2, 3, 4})

	m, err := a.Mean("y")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, m.Dims)
	// mean over j of 100i+10j+k is 100i+10+k
	assert.Equal(t, complex(100+10+3, 0), m.At(1, 3))

	all, err := a.Mean("x", "y", "z")
	require.NoError(t, err)
	assert.Empty(t, all.Dims)
	assert.InDelta(t, 50+10+1.5, real(all.Data[0]), 1e-12)

	_, err = a.Mean("t")
	assert.True(t, errors.Is(err, ErrUnknownDim))
}

func TestIselAndSel(t *testing.T) {
	a := iota3(t, []string{"x", "y", "z"}, []int{2, 3, 4})
	require.NoError(t, a.SetCoord(Range("z", 4, 1.5, "mm")))

	b, err := a.Isel("z", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2}, b.Shape)
	assert.Equal(t, a.At(1, 2, 2), b.At(1, 2, 1))
	assert.Equal(t, []float64{1.5, 3}, b.Coords["z"].Values)

	c, err := a.Sel("z", 4.5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, c.Shape)
	assert.Equal(t, a.At(0, 1, 3), c.At(0, 1, 0))

	_, err = a.Sel("z", 4.4)
	assert.Error(t, err)
	_, err = a.Isel("z", 3, 3)
	assert.Error(t, err)
}

func TestCoarsen(t *testing.T) {
	a, err := New("m", []string{"x", "y"}, []int{5, 4}, Range("x", 5, 1, "mm"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			a.Set(complex(float64(i*4+j), 0), i, j)
		}
	}

	mean, err := a.Coarsen(map[string]int{"x": 2, "y": 2}, ReduceMean)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, mean.Shape) // x trimmed from 5 to 4
	// block rows 0-1, cols 0-1: 0,1,4,5
	assert.Equal(t, complex(2.5, 0), mean.At(0, 0))
	assert.Equal(t, []float64{0.5, 2.5}, mean.Coords["x"].Values)

	peak, err := a.Coarsen(map[string]int{"x": 2, "y": 2}, ReduceMax)
	require.NoError(t, err)
	assert.Equal(t, complex(15, 0), peak.At(1, 1))

	_, err = a.Coarsen(map[string]int{"y": 5}, ReduceMean)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestAlignLikeReversedMask(t *testing.T) {
	like, err := New("u", []string{"timesteps", "x", "y", "z"}, []int{4, 6, 5, 3},
		Range("x", 6, 2, "mm"), Range("y", 5, 2, "mm"), Range("z", 3, 2, "mm"))
	require.NoError(t, err)

	// mask stored as (z, y, x)
	raw, err := New("mask", rawDims(3), []int{3, 5, 6})
	require.NoError(t, err)
	for z := 0; z < 3; z++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 6; x++ {
				raw.Set(complex(float64(100*x+10*y+z), 0), z, y, x)
			}
		}
	}

	got, err := AlignLike(raw, like)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, got.Dims)
	assert.Equal(t, []int{6, 5, 3}, got.Shape)
	assert.Equal(t, complex(float64(100*4+10*3+2), 0), got.At(4, 3, 2))
	assert.Equal(t, like.Coords["x"].Values, got.Coords["x"].Values)
}

func TestAlignLikeNativeOrderWins(t *testing.T) {
	like, err := New("u", []string{"x", "y", "z"}, []int{4, 4, 2})
	require.NoError(t, err)
	raw := iota3(t, rawDims(3), []int{4, 4, 2})

	got, err := AlignLike(raw, like)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, got.Dims)
	assert.Equal(t, raw.Data, got.Data)
}

func TestAlignLikeExtraAndSingletons(t *testing.T) {
	like, err := New("u", []string{"frequency", "x", "y", "z"}, []int{1, 6, 5, 3},
		Scalar("frequency", 60, "Hz"))
	require.NoError(t, err)

	// modulus volume (z, y, x, component, 1) with a leading inserted axis
	raw, err := New("mu", rawDims(6), []int{1, 3, 5, 6, 3, 1})
	require.NoError(t, err)
	for z := 0; z < 3; z++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 6; x++ {
				for c := 0; c < 3; c++ {
					raw.Set(complex(float64(1000*c+100*x+10*y+z), 1), 0, z, y, x, c, 0)
				}
			}
		}
	}
	raw.Complex = true

	got, err := AlignLike(raw, like, Categorical("component", "x", "y", "z"))
	require.NoError(t, err)
	assert.Equal(t, []string{"frequency", "x", "y", "z", "component"}, got.Dims)
	assert.Equal(t, []int{1, 6, 5, 3, 3}, got.Shape)
	assert.Equal(t, complex(float64(1000*2+100*5+10*1+2), 1), got.At(0, 5, 1, 2, 2))
	assert.Equal(t, []float64{60}, got.Coords["frequency"].Values)
	assert.Equal(t, []string{"x", "y", "z"}, got.Coords["component"].Labels)
	assert.True(t, got.Complex)
}

func TestAlignLikeSpatialMaskWithEqualLengths(t *testing.T) {
	// x and y share a length; the mask is stored as (z, y, x)
	like, err := New("u", []string{"x", "y", "z"}, []int{6, 6, 4})
	require.NoError(t, err)
	raw := iota3(t, rawDims(3), []int{4, 6, 6})

	got, err := AlignLike(raw, like)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, got.Dims)
	assert.Equal(t, []int{6, 6, 4}, got.Shape)
	// raw (z=3, y=1, x=5)
	assert.Equal(t, complex(float64(100*3+10*1+5), 0), got.At(5, 1, 3))
}

func TestAlignLikePrefersTrailingExtras(t *testing.T) {
	// depth and component share a length and x matches y: reading the
	// volume as (component, x, y, z) keeps the reference order but puts the
	// extra axis first, so (z, y, x, component) wins.
	like, err := New("u", []string{"frequency", "x", "y", "z"}, []int{1, 6, 6, 3})
	require.NoError(t, err)
	raw, err := New("mu", rawDims(4), []int{3, 6, 6, 3})
	require.NoError(t, err)
	for i := range raw.Data {
		raw.Data[i] = complex(float64(i), 0)
	}

	got, err := AlignLike(raw, like, Categorical("component", "x", "y", "z"))
	require.NoError(t, err)
	assert.Equal(t, []string{"frequency", "x", "y", "z", "component"}, got.Dims)
	assert.Equal(t, []int{1, 6, 6, 3, 3}, got.Shape)
	// raw (z=2, y=4, x=1, c=0)
	assert.Equal(t, raw.At(2, 4, 1, 0), got.At(0, 1, 4, 2, 0))
	assert.Equal(t, raw.At(0, 5, 3, 2), got.At(0, 3, 5, 0, 2))
}

func TestAlignLikeAllSingletons(t *testing.T) {
	like, err := New("u", []string{"frequency", "x"}, []int{1, 4}, Scalar("frequency", 60, "Hz"))
	require.NoError(t, err)
	raw, err := New("mask", rawDims(3), []int{1, 1, 1})
	require.NoError(t, err)
	raw.Data[0] = 7

	got, err := AlignLike(raw, like)
	require.NoError(t, err)
	assert.Equal(t, []string{"frequency"}, got.Dims)
	assert.Equal(t, []int{1}, got.Shape)
	assert.Equal(t, []complex128{7}, got.Data)
}

func TestAlignLikeMismatch(t *testing.T) {
	like, err := New("u", []string{"x", "y"}, []int{4, 5})
	require.NoError(t, err)
	raw, err := New("mask", rawDims(2), []int{4, 7})
	require.NoError(t, err)

	_, err = AlignLike(raw, like)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestDatasetAssign(t *testing.T) {
	ds := NewDataset()
	wave, err := New("", []string{"x", "y"}, []int{2, 3}, Range("x", 2, 1.5, "mm"))
	require.NoError(t, err)
	require.NoError(t, ds.Assign("wave", wave))

	before := append([]complex128(nil), wave.Data...)

	mask, err := New("", []string{"x"}, []int{2}, Range("x", 2, 1.5, "mm"))
	require.NoError(t, err)
	require.NoError(t, ds.Assign("spatial_region", mask))
	require.NoError(t, ds.AssignCoords("spatial_region"))

	assert.Equal(t, []string{"wave"}, ds.Names())
	assert.Equal(t, []string{"wave", "spatial_region"}, ds.AllNames())
	assert.True(t, ds.IsCoord("spatial_region"))
	assert.Equal(t, before, wave.Data)

	// assigning again replaces without duplicating
	require.NoError(t, ds.Assign("spatial_region", mask))
	assert.Len(t, ds.AllNames(), 2)

	wrongLen, err := New("", []string{"x"}, []int{3})
	require.NoError(t, err)
	assert.True(t, errors.Is(ds.Assign("bad", wrongLen), ErrCoordinateConflict))

	wrongTicks, err := New("", []string{"x"}, []int{2}, Range("x", 2, 2, "mm"))
	require.NoError(t, err)
	assert.True(t, errors.Is(ds.Assign("bad", wrongTicks), ErrCoordinateConflict))

	assert.Error(t, ds.AssignCoords("missing"))
	assert.Contains(t, ds.String(), "spatial_region")
	assert.Equal(t, 2, ds.Size("x"))
}

func TestDatasetMap(t *testing.T) {
	ds := NewDataset()
	ds.Attrs["source"] = "test"
	a, err := New("", []string{"x"}, []int{4}, Range("x", 4, 1, "mm"))
	require.NoError(t, err)
	for i := range a.Data {
		a.Data[i] = complex(float64(i), 0)
	}
	require.NoError(t, ds.Assign("a", a))
	require.NoError(t, ds.AssignCoords("a"))

	half, err := ds.Map(func(_ string, arr *DataArray) (*DataArray, error) {
		return arr.Isel("x", 0, 2)
	})
	require.NoError(t, err)
	got, ok := half.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, got.Size("x"))
	assert.True(t, half.IsCoord("a"))
	assert.Equal(t, "test", half.Attrs["source"])
}

func TestCoordinateHelpers(t *testing.T) {
	c := Categorical("component", "x", "y", "z")
	assert.True(t, c.IsCategorical())

	r := Range("x", 4, 1.5, "mm")
	assert.Equal(t, []float64{0, 1.5, 3, 4.5}, r.Values)
	idx, ok := r.Index(3.0, 1e-9)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.False(t, r.Equal(Range("x", 4, 1.4, "mm")))
	assert.True(t, math.Abs(r.Slice(1, 3).Values[0]-1.5) < 1e-12)
}
