// Package export writes labeled datasets to NetCDF classic files so that
// they can be opened by xarray and the usual NetCDF tooling.
package export

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"mrewave/pkg/labeled"
)

// Suffixes of the two variables a complex array is split into.
const (
	RealSuffix = "_real"
	ImagSuffix = "_imag"
)

// WriteNetCDF writes every coordinate and array of ds to a CDF file at
// path. Complex arrays become <name>_real and <name>_imag with a complex
// attribute naming the pair; categorical coordinates become char variables.
func WriteNetCDF(ds *labeled.Dataset, path string) (err error) {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := cw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	globals, err := attributes(ds.Attrs, nil)
	if err != nil {
		return err
	}
	if err := cw.AddGlobalAttrs(globals); err != nil {
		return fmt.Errorf("global attributes: %w", err)
	}

	for _, dim := range ds.Dims() {
		c, ok := ds.Coord(dim)
		if !ok {
			continue
		}
		if err := addCoordinate(cw, c); err != nil {
			return fmt.Errorf("coordinate %s: %w", dim, err)
		}
	}

	for _, name := range ds.AllNames() {
		a, _ := ds.Get(name)
		extra := map[string]string{}
		if refs := auxCoords(ds, a); len(refs) > 0 {
			extra["coordinates"] = strings.Join(refs, " ")
		}
		if err := addArray(cw, a, extra); err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
	}
	return nil
}

func addCoordinate(cw *cdf.CDFWriter, c labeled.Coordinate) error {
	if c.IsCategorical() {
		attrs, err := attributes(nil, nil)
		if err != nil {
			return err
		}
		return cw.AddVar(c.Dim, api.Variable{
			Values:     append([]string(nil), c.Labels...),
			Dimensions: []string{c.Dim, c.Dim + "_strlen"},
			Attributes: attrs,
		})
	}

	var extra map[string]string
	if c.Units != "" {
		extra = map[string]string{"units": c.Units}
	}
	attrs, err := attributes(nil, extra)
	if err != nil {
		return err
	}
	return cw.AddVar(c.Dim, api.Variable{
		Values:     append([]float64(nil), c.Values...),
		Dimensions: []string{c.Dim},
		Attributes: attrs,
	})
}

func addArray(cw *cdf.CDFWriter, a *labeled.DataArray, extra map[string]string) error {
	if !a.Complex {
		attrs, err := attributes(a.Attrs, extra)
		if err != nil {
			return err
		}
		return cw.AddVar(a.Name, variable(a.Real(), a, attrs))
	}

	parts := []struct {
		suffix string
		vals   []float64
	}{
		{RealSuffix, a.Real()},
		{ImagSuffix, a.Imag()},
	}
	for _, p := range parts {
		e := map[string]string{"complex": a.Name + RealSuffix + " " + a.Name + ImagSuffix}
		for k, v := range extra {
			e[k] = v
		}
		attrs, err := attributes(a.Attrs, e)
		if err != nil {
			return err
		}
		if err := cw.AddVar(a.Name+p.suffix, variable(p.vals, a, attrs)); err != nil {
			return err
		}
	}
	return nil
}

func variable(vals []float64, a *labeled.DataArray, attrs api.AttributeMap) api.Variable {
	return api.Variable{
		Values:     Nest(vals, a.Shape),
		Dimensions: append([]string(nil), a.Dims...),
		Attributes: attrs,
	}
}

// auxCoords lists the promoted coordinate arrays whose dimensions are all
// carried by a.
func auxCoords(ds *labeled.Dataset, a *labeled.DataArray) []string {
	if ds.IsCoord(a.Name) {
		return nil
	}
	var out []string
	for _, name := range ds.AllNames() {
		if !ds.IsCoord(name) {
			continue
		}
		c, _ := ds.Get(name)
		covered := true
		for _, d := range c.Dims {
			if a.Axis(d) < 0 {
				covered = false
				break
			}
		}
		if covered {
			out = append(out, name)
		}
	}
	return out
}

// attributes merges string attribute maps into an ordered map with sorted
// keys.
func attributes(base, extra map[string]string) (*util.OrderedMap, error) {
	values := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		values[k] = v
	}
	for k, v := range extra {
		values[k] = v
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return util.NewOrderedMap(keys, values)
}

// Nest reshapes row-major values into nested slices ([]float64,
// [][]float64, ...) matching shape. A zero-dimensional shape yields a
// scalar float64.
func Nest(vals []float64, shape []int) interface{} {
	if len(shape) == 0 {
		return vals[0]
	}
	t := reflect.TypeOf(float64(0))
	for range shape {
		t = reflect.SliceOf(t)
	}
	return nest(reflect.ValueOf(vals), shape, t).Interface()
}

func nest(vals reflect.Value, shape []int, t reflect.Type) reflect.Value {
	if len(shape) == 1 || shape[0] == 0 {
		out := reflect.MakeSlice(t, shape[0], shape[0])
		reflect.Copy(out, vals)
		return out
	}
	block := vals.Len() / shape[0]
	out := reflect.MakeSlice(t, shape[0], shape[0])
	for i := 0; i < shape[0]; i++ {
		out.Index(i).Set(nest(vals.Slice(i*block, (i+1)*block), shape[1:], t.Elem()))
	}
	return out
}
