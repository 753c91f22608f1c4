package export

import (
	"path/filepath"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrewave/pkg/labeled"
)

func TestNest(t *testing.T) {
	vals := []float64{0, 1, 2, 3, 4, 5}
	assert.Equal(t, [][]float64{{0, 1, 2}, {3, 4, 5}}, Nest(vals, []int{2, 3}))
	assert.Equal(t, [][][]float64{{{0}, {1}, {2}}, {{3}, {4}, {5}}}, Nest(vals, []int{2, 3, 1}))
	assert.Equal(t, vals, Nest(vals, []int{6}))
	assert.Equal(t, 7.0, Nest([]float64{7}, nil))
}

func testDataset(t *testing.T) *labeled.Dataset {
	t.Helper()
	ds := labeled.NewDataset()
	ds.Attrs["source"] = "wave.mat"

	wave, err := labeled.New("", []string{"x", "component"}, []int{2, 3},
		labeled.Range("x", 2, 1.5, "mm"), labeled.Categorical("component", "x", "y", "z"))
	require.NoError(t, err)
	for i := range wave.Data {
		wave.Data[i] = complex(float64(i), -float64(i))
	}
	wave.Complex = true
	wave.Attrs["long_name"] = "complex wave field"
	require.NoError(t, ds.Assign("wave", wave))

	region, err := labeled.New("", []string{"x"}, []int{2}, labeled.Range("x", 2, 1.5, "mm"))
	require.NoError(t, err)
	region.Data[1] = 4
	require.NoError(t, ds.Assign("spatial_region", region))
	require.NoError(t, ds.AssignCoords("spatial_region"))
	return ds
}

func TestWriteNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.nc")
	require.NoError(t, WriteNetCDF(testDataset(t), path))

	nc, err := cdf.Open(path)
	require.NoError(t, err)
	defer nc.Close()

	names := nc.ListVariables()
	for _, want := range []string{"x", "component", "wave_real", "wave_imag", "spatial_region"} {
		assert.Contains(t, names, want)
	}
	assert.NotContains(t, names, "wave")

	re, err := nc.GetVariable("wave_real")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "component"}, re.Dimensions)
	assert.Equal(t, [][]float64{{0, 1, 2}, {3, 4, 5}}, re.Values)
	pair, ok := re.Attributes.Get("complex")
	require.True(t, ok)
	assert.Equal(t, "wave_real wave_imag", pair)
	refs, ok := re.Attributes.Get("coordinates")
	require.True(t, ok)
	assert.Equal(t, "spatial_region", refs)

	im, err := nc.GetVariable("wave_imag")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, -1, -2}, {-3, -4, -5}}, im.Values)

	x, err := nc.GetVariable("x")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1.5}, x.Values)
	units, ok := x.Attributes.Get("units")
	require.True(t, ok)
	assert.Equal(t, "mm", units)

	region, err := nc.GetVariable("spatial_region")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 4}, region.Values)

	src, ok := nc.Attributes().Get("source")
	require.True(t, ok)
	assert.Equal(t, "wave.mat", src)
}
