package matfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"

	"mrewave/internal/models"
)

var errTruncated = errors.New("truncated data element")

// decodeV5 reads every top-level data element following the header.
func decodeV5(r io.Reader, order byteOrder, f *File) error {
	br := bufio.NewReader(r)
	for {
		typ, data, err := readElement(br, order)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := decodeTopLevel(typ, data, order, f); err != nil {
			return err
		}
	}
}

func decodeTopLevel(typ uint32, data []byte, order byteOrder, f *File) error {
	switch typ {
	case miCOMPRESSED:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("compressed element: %w", err)
		}
		raw, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return fmt.Errorf("compressed element: %w", err)
		}
		inner := bytes.NewReader(raw)
		for {
			ityp, idata, err := readElement(inner, order)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := decodeTopLevel(ityp, idata, order, f); err != nil {
				return err
			}
		}
	case miMATRIX:
		v, name, err := decodeMatrix(data, order)
		if err != nil {
			return err
		}
		if v == nil {
			if name != "" {
				f.Unsupported = append(f.Unsupported, name)
			}
			return nil
		}
		f.add(v)
		return nil
	default:
		// Stray top-level elements carry no variables.
		return nil
	}
}

// readElement reads one tagged data element, honouring the small data
// element format, and consumes the 8-byte alignment padding.
func readElement(r io.Reader, order byteOrder) (uint32, []byte, error) {
	var tag [8]byte
	n, err := io.ReadFull(r, tag[:])
	if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
		return 0, nil, io.EOF
	}
	if err != nil {
		return 0, nil, errTruncated
	}

	w0 := order.Uint32(tag[0:4])
	if small := w0 >> 16; small != 0 {
		if small > 4 {
			return 0, nil, fmt.Errorf("small data element claims %d bytes", small)
		}
		return w0 & 0xffff, append([]byte(nil), tag[4:4+small]...), nil
	}

	size := order.Uint32(tag[4:8])
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, errTruncated
	}
	if w0 != miCOMPRESSED {
		if pad := (8 - size%8) % 8; pad > 0 {
			// The final element of a file is sometimes written unpadded.
			var skip [8]byte
			_, _ = io.ReadFull(r, skip[:pad])
		}
	}
	return w0, data, nil
}

// decodeMatrix decodes a miMATRIX element. A nil variable with a non-empty
// name means the array class is not supported.
func decodeMatrix(data []byte, order byteOrder) (*Variable, string, error) {
	if len(data) == 0 {
		return nil, "", nil
	}
	r := bytes.NewReader(data)

	typ, flags, err := readElement(r, order)
	if err != nil {
		return nil, "", fmt.Errorf("array flags: %w", err)
	}
	if typ != miUINT32 || len(flags) < 4 {
		return nil, "", fmt.Errorf("array flags: unexpected element type %d", typ)
	}
	word := order.Uint32(flags[0:4])
	class := Class(word & 0xff)
	isComplex := word&flagComplex != 0
	isLogical := word&flagLogical != 0

	typ, dimData, err := readElement(r, order)
	if err != nil {
		return nil, "", fmt.Errorf("dimensions: %w", err)
	}
	dimVals, err := decodeNumeric(typ, dimData, order)
	if err != nil {
		return nil, "", fmt.Errorf("dimensions: %w", err)
	}
	dims := make([]int, len(dimVals))
	for i, d := range dimVals {
		dims[i] = int(d)
	}

	_, nameData, err := readElement(r, order)
	if err != nil {
		return nil, "", fmt.Errorf("array name: %w", err)
	}
	name := string(nameData)

	switch {
	case class == ClassChar:
		typ, textData, err := readElement(r, order)
		if err != nil {
			return nil, name, fmt.Errorf("%s: char data: %w", name, err)
		}
		text, err := decodeText(typ, textData, order)
		if err != nil {
			return nil, name, fmt.Errorf("%s: %w", name, err)
		}
		return &Variable{Name: name, Class: ClassChar, Text: text}, name, nil

	case class.IsNumeric():
		vol := &models.Volume{Shape: dims}
		typ, realData, err := readElement(r, order)
		if err != nil {
			return nil, name, fmt.Errorf("%s: real part: %w", name, err)
		}
		if vol.Data, err = decodeNumeric(typ, realData, order); err != nil {
			return nil, name, fmt.Errorf("%s: real part: %w", name, err)
		}
		if err := vol.Validate(); err != nil {
			return nil, name, fmt.Errorf("%s: %w", name, err)
		}

		v := &Variable{Name: name, Class: class, Real: vol}
		if isLogical {
			v.Class = ClassLogical
		}
		if isComplex {
			typ, imagData, err := readElement(r, order)
			if err != nil {
				return nil, name, fmt.Errorf("%s: imaginary part: %w", name, err)
			}
			im := &models.Volume{Shape: dims}
			if im.Data, err = decodeNumeric(typ, imagData, order); err != nil {
				return nil, name, fmt.Errorf("%s: imaginary part: %w", name, err)
			}
			if err := im.Validate(); err != nil {
				return nil, name, fmt.Errorf("%s: imaginary part: %w", name, err)
			}
			v.Imag = im
		}
		return v, name, nil

	default:
		return nil, name, nil
	}
}

func decodeText(typ uint32, data []byte, order byteOrder) (string, error) {
	switch typ {
	case miUTF8, miINT8, miUINT8:
		return string(data), nil
	case miUINT16, miUTF16:
		codes, err := decodeNumeric(miUINT16, data, order)
		if err != nil {
			return "", err
		}
		runes := make([]rune, len(codes))
		for i, c := range codes {
			runes[i] = rune(c)
		}
		return string(runes), nil
	default:
		return "", fmt.Errorf("unsupported char element type %d", typ)
	}
}

func elementSize(typ uint32) int {
	switch typ {
	case miINT8, miUINT8, miUTF8:
		return 1
	case miINT16, miUINT16, miUTF16:
		return 2
	case miINT32, miUINT32, miSINGLE, miUTF32:
		return 4
	case miDOUBLE, miINT64, miUINT64:
		return 8
	default:
		return 0
	}
}

// decodeNumeric converts a numeric data element to float64 values.
func decodeNumeric(typ uint32, data []byte, order byteOrder) ([]float64, error) {
	size := elementSize(typ)
	if size == 0 || typ == miUTF32 {
		return nil, fmt.Errorf("unsupported numeric element type %d", typ)
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("element of %d bytes is not a multiple of %d", len(data), size)
	}

	out := make([]float64, len(data)/size)
	for i := range out {
		b := data[i*size : (i+1)*size]
		switch typ {
		case miINT8:
			out[i] = float64(int8(b[0]))
		case miUINT8, miUTF8:
			out[i] = float64(b[0])
		case miINT16:
			out[i] = float64(int16(order.Uint16(b)))
		case miUINT16, miUTF16:
			out[i] = float64(order.Uint16(b))
		case miINT32:
			out[i] = float64(int32(order.Uint32(b)))
		case miUINT32:
			out[i] = float64(order.Uint32(b))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case miDOUBLE:
			out[i] = math.Float64frombits(order.Uint64(b))
		case miINT64:
			out[i] = float64(int64(order.Uint64(b)))
		case miUINT64:
			out[i] = float64(order.Uint64(b))
		}
	}
	return out, nil
}
