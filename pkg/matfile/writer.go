package matfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/klauspost/compress/zlib"
)

// WriteV5 writes numeric variables as a little-endian level 5 MAT file.
// Every variable is stored with the double class; Imag, when present, is
// written as the imaginary part. With compress set each array is wrapped in
// a zlib-compressed element, as MATLAB does by default since v7.
func WriteV5(w io.Writer, vars []*Variable, compress bool) error {
	order := binary.LittleEndian

	hdr := make([]byte, headerLen)
	for i := range hdr[:116] {
		hdr[i] = ' '
	}
	copy(hdr, fmt.Sprintf("%s, Platform: GLNXA64, Created on: %s", headerTitle, time.Now().UTC().Format(time.ANSIC)))
	order.PutUint16(hdr[124:126], versionV5)
	copy(hdr[126:128], "IM")
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	for _, v := range vars {
		elem, err := encodeMatrix(v, order)
		if err != nil {
			return fmt.Errorf("%s: %w", v.Name, err)
		}
		if compress {
			var zbuf bytes.Buffer
			zw := zlib.NewWriter(&zbuf)
			if _, err := zw.Write(elem); err != nil {
				return err
			}
			if err := zw.Close(); err != nil {
				return err
			}
			elem = tag(order, miCOMPRESSED, zbuf.Bytes(), false)
		}
		if _, err := w.Write(elem); err != nil {
			return err
		}
	}
	return nil
}

// WriteV5File is WriteV5 to a newly created file.
func WriteV5File(path string, vars []*Variable, compress bool) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteV5(fh, vars, compress); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func encodeMatrix(v *Variable, order binary.ByteOrder) ([]byte, error) {
	if v.Real == nil {
		return nil, fmt.Errorf("only numeric variables can be written")
	}
	if err := v.Real.Validate(); err != nil {
		return nil, err
	}

	var body bytes.Buffer

	flags := make([]byte, 8)
	word := uint32(ClassDouble)
	if v.Imag != nil {
		if !v.Imag.SameShape(v.Real) {
			return nil, fmt.Errorf("imaginary part shape %v differs from real part %v", v.Imag.Shape, v.Real.Shape)
		}
		word |= flagComplex
	}
	order.PutUint32(flags, word)
	body.Write(tag(order, miUINT32, flags, true))

	dims := make([]byte, 4*len(v.Real.Shape))
	for i, d := range v.Real.Shape {
		order.PutUint32(dims[4*i:], uint32(int32(d)))
	}
	body.Write(tag(order, miINT32, dims, true))

	body.Write(tag(order, miINT8, []byte(v.Name), true))
	body.Write(tag(order, miDOUBLE, doubles(order, v.Real.Data), true))
	if v.Imag != nil {
		body.Write(tag(order, miDOUBLE, doubles(order, v.Imag.Data), true))
	}

	return tag(order, miMATRIX, body.Bytes(), true), nil
}

// tag prefixes data with its element tag. Payloads of at most four bytes
// use the small data element format.
func tag(order binary.ByteOrder, typ uint32, data []byte, pad bool) []byte {
	if len(data) <= 4 && len(data) > 0 && typ != miMATRIX && typ != miCOMPRESSED {
		out := make([]byte, 8)
		order.PutUint32(out[0:4], uint32(len(data))<<16|typ)
		copy(out[4:], data)
		return out
	}

	n := len(data)
	padded := n
	if pad {
		padded += (8 - n%8) % 8
	}
	out := make([]byte, 8+padded)
	order.PutUint32(out[0:4], typ)
	order.PutUint32(out[4:8], uint32(n))
	copy(out[8:], data)
	return out
}

func doubles(order binary.ByteOrder, vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		order.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}
