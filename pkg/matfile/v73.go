package matfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/hdf5"

	"mrewave/internal/models"
)

var (
	hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

	errUnsupported = errors.New("unsupported HDF5 element type")
)

// decodeV73 reads a MATLAB v7.3 file. The HDF5 superblock sits behind a
// user block (512 bytes when written by MATLAB); when it is not at offset
// zero the HDF5 portion is copied to a temporary file first.
func decodeV73(fh *os.File, f *File) error {
	off, err := findSuperblock(fh)
	if err != nil {
		return err
	}

	path := f.Path
	if off > 0 {
		tmp, err := stripUserBlock(fh, off)
		if err != nil {
			return err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	g, err := hdf5.Open(path)
	if err != nil {
		return fmt.Errorf("open HDF5: %w", err)
	}
	defer g.Close()

	for _, name := range g.ListVariables() {
		vr, err := g.GetVariable(name)
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		v, err := fromHDF5(name, vr)
		if errors.Is(err, errUnsupported) {
			f.Unsupported = append(f.Unsupported, name)
			continue
		}
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		f.add(v)
	}
	f.ReversedAxes = true
	return nil
}

// findSuperblock returns the offset of the HDF5 signature, which the HDF5
// format allows at 0, 512, 1024, 2048 and so on.
func findSuperblock(r io.ReaderAt) (int64, error) {
	sig := make([]byte, len(hdf5Signature))
	for off := int64(0); ; {
		if _, err := r.ReadAt(sig, off); err != nil {
			return 0, fmt.Errorf("no HDF5 superblock found: %w", err)
		}
		if bytes.Equal(sig, hdf5Signature) {
			return off, nil
		}
		if off == 0 {
			off = 512
		} else {
			off *= 2
		}
	}
}

func stripUserBlock(fh *os.File, off int64) (string, error) {
	st, err := fh.Stat()
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "mrewave-*.h5")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, io.NewSectionReader(fh, off, st.Size()-off)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy HDF5 payload: %w", err)
	}
	return tmp.Name(), nil
}

// fromHDF5 converts an HDF5 dataset into a Variable. HDF5 stores MATLAB
// arrays with their dimensions reversed, so row-major data over the HDF5
// shape is column-major data over the reversed shape.
func fromHDF5(name string, vr *api.Variable) (*Variable, error) {
	class := ClassDouble
	if vr.Attributes != nil {
		if raw, ok := vr.Attributes.Get("MATLAB_class"); ok {
			if s, ok := raw.(string); ok {
				if c, ok := ParseClass(s); ok {
					class = c
				}
			}
		}
	}
	if !class.IsNumeric() && class != ClassChar {
		return nil, errUnsupported
	}

	re, im, shape, err := flatten(vr.Values)
	if err != nil {
		return nil, err
	}
	dims := reverseInts(shape)
	switch len(dims) {
	case 0:
		dims = []int{1, 1}
	case 1:
		dims = append([]int{1}, dims...)
	}

	if class == ClassChar {
		runes := make([]rune, len(re))
		for i, c := range re {
			runes[i] = rune(c)
		}
		return &Variable{Name: name, Class: ClassChar, Text: string(runes)}, nil
	}

	v := &Variable{
		Name:  name,
		Class: class,
		Real:  &models.Volume{Shape: dims, Data: re},
	}
	if im != nil {
		v.Imag = &models.Volume{Shape: dims, Data: im}
	}
	return v, nil
}

// flatten walks a nested slice of numbers in row-major order. MATLAB
// stores complex arrays as a compound of two doubles; the HDF5 reader hands
// each element back as a list of named fields, or as a two-field struct
// when a Go type was registered for it.
func flatten(val any) (re, im []float64, shape []int, err error) {
	rv := reflect.ValueOf(val)
	for dim := rv; (dim.Kind() == reflect.Slice || dim.Kind() == reflect.Array) && !isCompound(dim.Type()); {
		shape = append(shape, dim.Len())
		if dim.Len() == 0 {
			break
		}
		dim = dim.Index(0)
	}

	appendComplex := func(r, i float64) {
		if im == nil {
			im = make([]float64, len(re))
		}
		re = append(re, r)
		im = append(im, i)
	}

	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		if v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		switch {
		case v.Kind() == reflect.Invalid:
			return fmt.Errorf("%w: nil element", errUnsupported)
		case isCompound(v.Type()):
			r, i, err := compoundParts(v)
			if err != nil {
				return err
			}
			appendComplex(r, i)
			return nil
		case v.Kind() == reflect.Slice || v.Kind() == reflect.Array:
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		case v.Kind() == reflect.Struct:
			if v.NumField() != 2 {
				return fmt.Errorf("%w: %s", errUnsupported, v.Type())
			}
			r, ok1 := scalar(v.Field(0))
			i, ok2 := scalar(v.Field(1))
			if !ok1 || !ok2 {
				return fmt.Errorf("%w: %s", errUnsupported, v.Type())
			}
			appendComplex(r, i)
			return nil
		default:
			x, ok := scalar(v)
			if !ok {
				return fmt.Errorf("%w: %s", errUnsupported, v.Type())
			}
			re = append(re, x)
			if im != nil {
				im = append(im, 0)
			}
			return nil
		}
	}
	if err := walk(rv); err != nil {
		return nil, nil, nil, err
	}
	return re, im, shape, nil
}

// isCompound reports whether t is a list of {Name, Val} fields, the form the
// HDF5 reader uses for compound values without a registered Go type.
func isCompound(t reflect.Type) bool {
	if t.Kind() != reflect.Slice {
		return false
	}
	e := t.Elem()
	if e.Kind() != reflect.Struct || e.NumField() != 2 {
		return false
	}
	name, val := e.Field(0), e.Field(1)
	return name.Name == "Name" && name.Type.Kind() == reflect.String &&
		val.Name == "Val" && val.Type.Kind() == reflect.Interface
}

// compoundParts reads the real and imaginary members of a compound element.
// Members are matched by name and fall back to position.
func compoundParts(v reflect.Value) (r, i float64, err error) {
	if v.Len() != 2 {
		return 0, 0, fmt.Errorf("%w: compound with %d members", errUnsupported, v.Len())
	}
	var parts [2]float64
	for k := 0; k < 2; k++ {
		field := v.Index(k)
		x, ok := scalar(field.Field(1).Elem())
		if !ok {
			return 0, 0, fmt.Errorf("%w: compound member %s", errUnsupported, field.Field(0).String())
		}
		slot := k
		switch strings.ToLower(field.Field(0).String()) {
		case "real", "re":
			slot = 0
		case "imag", "im":
			slot = 1
		}
		parts[slot] = x
	}
	return parts[0], parts[1], nil
}

func scalar(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Bool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func reverseInts(s []int) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
