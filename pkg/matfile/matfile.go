// Package matfile reads MATLAB .mat files.
//
// Level 5 files (MATLAB v5 through v7) are decoded directly. Version 7.3
// files are HDF5 containers with a MATLAB user block; they are read through
// the HDF5 reader instead, and their axes are reversed back into MATLAB
// order so that callers see the same shape regardless of the on-disk format.
//
// Numeric arrays are exposed as column-major volumes, exactly as MATLAB
// stores them.
package matfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"mrewave/internal/models"
)

// Format identifies the on-disk MAT file flavour.
type Format int

const (
	// FormatV5 is the level 5 binary format used up to MATLAB v7.
	FormatV5 Format = iota
	// FormatV73 is the HDF5-based format written with -v7.3.
	FormatV73
)

func (f Format) String() string {
	switch f {
	case FormatV5:
		return "v5"
	case FormatV73:
		return "v7.3"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

const (
	headerLen   = 128
	versionV5   = 0x0100
	versionV73  = 0x0200
	headerTitle = "MATLAB 5.0 MAT-file"
)

var (
	// ErrNotMATFile is returned when the header is not a MAT file header.
	ErrNotMATFile = errors.New("not a MATLAB MAT-file")

	// ErrUnsupportedVersion is returned for header versions other than
	// v5 and v7.3.
	ErrUnsupportedVersion = errors.New("unsupported MAT-file version")

	// ErrMissingVariable is returned by File.Var for unknown names.
	ErrMissingVariable = errors.New("variable not found")
)

// LoadError reports a failure to load a MAT file. Its message always names
// the file so that a failing batch can be traced back to its input.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Variable is a single named array from a MAT file.
type Variable struct {
	// Name is the MATLAB variable name.
	Name string

	// Class is the MATLAB array class.
	Class Class

	// Real holds the real part of numeric and logical arrays.
	Real *models.Volume

	// Imag holds the imaginary part of complex arrays and is nil otherwise.
	Imag *models.Volume

	// Text holds the contents of char arrays.
	Text string
}

// IsComplex reports whether the variable has an imaginary part.
func (v *Variable) IsComplex() bool { return v.Imag != nil }

// Shape returns the MATLAB dimensions of the variable.
func (v *Variable) Shape() []int {
	if v.Real != nil {
		return v.Real.Shape
	}
	if v.Text != "" {
		return []int{1, len(v.Text)}
	}
	return nil
}

// DType returns the Go element type the variable is decoded to.
func (v *Variable) DType() string {
	switch {
	case v.Class == ClassChar:
		return "string"
	case v.IsComplex():
		return "complex128"
	case v.Real != nil:
		return "float64"
	default:
		return "none"
	}
}

// File is a loaded MAT file.
type File struct {
	// Path is the file the variables were loaded from.
	Path string

	// Format is the on-disk flavour.
	Format Format

	// ReversedAxes is true when the on-disk axis order was reversed relative
	// to MATLAB order and has been reversed back during loading.
	ReversedAxes bool

	// Header is the descriptive text of the 128-byte header.
	Header string

	// Unsupported lists variables that were present but could not be
	// decoded (cells, structs, sparse matrices, objects).
	Unsupported []string

	vars  map[string]*Variable
	order []string
}

func newFile(path string, format Format) *File {
	return &File{
		Path:   path,
		Format: format,
		vars:   make(map[string]*Variable),
	}
}

func (f *File) add(v *Variable) {
	if _, ok := f.vars[v.Name]; !ok {
		f.order = append(f.order, v.Name)
	}
	f.vars[v.Name] = v
}

// Names returns the decoded variable names in file order.
func (f *File) Names() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Has reports whether the named variable was decoded.
func (f *File) Has(name string) bool {
	_, ok := f.vars[name]
	return ok
}

// Var returns the named variable.
func (f *File) Var(name string) (*Variable, error) {
	v, ok := f.vars[name]
	if !ok {
		known := f.Names()
		sort.Strings(known)
		return nil, fmt.Errorf("%w: %q in %s (have %s)", ErrMissingVariable, name, f.Path, strings.Join(known, ", "))
	}
	return v, nil
}

// Load reads the MAT file at path. Level 5 files are decoded directly; v7.3
// files fall back to the HDF5 reader. Any failure is returned as a
// *LoadError naming the file.
func Load(path string) (*File, error) {
	f, err := load(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return f, nil
}

func load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	hdr, err := readHeader(fh)
	if err != nil {
		return nil, err
	}

	switch hdr.version {
	case versionV5:
		f := newFile(path, FormatV5)
		f.Header = hdr.text
		if err := decodeV5(fh, hdr.order, f); err != nil {
			return nil, err
		}
		return f, nil
	case versionV73:
		f := newFile(path, FormatV73)
		f.Header = hdr.text
		if err := decodeV73(fh, f); err != nil {
			return nil, fmt.Errorf("v7.3 fallback: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnsupportedVersion, hdr.version)
	}
}

type header struct {
	text    string
	version uint16
	order   byteOrder
}

func readHeader(r io.Reader) (*header, error) {
	buf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file shorter than header", ErrNotMATFile)
		}
		return nil, err
	}
	if !bytes.HasPrefix(buf, []byte("MATLAB")) {
		return nil, ErrNotMATFile
	}

	var order byteOrder
	switch string(buf[126:128]) {
	case "IM":
		order = littleEndian
	case "MI":
		order = bigEndian
	default:
		return nil, fmt.Errorf("%w: bad endian indicator %q", ErrNotMATFile, buf[126:128])
	}

	return &header{
		text:    strings.TrimRight(string(bytes.TrimRight(buf[:116], "\x00")), " "),
		version: order.Uint16(buf[124:126]),
		order:   order,
	}, nil
}
