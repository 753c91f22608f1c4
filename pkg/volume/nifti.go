// Package volume loads NIfTI-1 image volumes, used for the storage and loss
// modulus maps that make up the ground-truth elastogram.
package volume

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/KyungWonPark/nifti"
	"github.com/klauspost/compress/gzip"

	"mrewave/internal/models"
)

const niftiHeaderSize = 348

var (
	// ErrNotNIfTI is returned when a file does not carry a NIfTI-1 header.
	ErrNotNIfTI = errors.New("not a NIfTI-1 file")

	// ErrUnsupportedDatatype is returned for complex, RGB and other voxel
	// types that do not map onto a real-valued volume.
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")
)

// NIfTI-1 datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
	dtInt64   = 1024
	dtUint64  = 1280
)

type voxelCodec struct {
	size   int
	decode func(order binary.ByteOrder, b []byte) float64
}

var voxelCodecs = map[int16]voxelCodec{
	dtUint8:   {1, func(_ binary.ByteOrder, b []byte) float64 { return float64(b[0]) }},
	dtInt8:    {1, func(_ binary.ByteOrder, b []byte) float64 { return float64(int8(b[0])) }},
	dtInt16:   {2, func(o binary.ByteOrder, b []byte) float64 { return float64(int16(o.Uint16(b))) }},
	dtUint16:  {2, func(o binary.ByteOrder, b []byte) float64 { return float64(o.Uint16(b)) }},
	dtInt32:   {4, func(o binary.ByteOrder, b []byte) float64 { return float64(int32(o.Uint32(b))) }},
	dtUint32:  {4, func(o binary.ByteOrder, b []byte) float64 { return float64(o.Uint32(b)) }},
	dtInt64:   {8, func(o binary.ByteOrder, b []byte) float64 { return float64(int64(o.Uint64(b))) }},
	dtUint64:  {8, func(o binary.ByteOrder, b []byte) float64 { return float64(o.Uint64(b)) }},
	dtFloat32: {4, func(o binary.ByteOrder, b []byte) float64 { return float64(math.Float32frombits(o.Uint32(b))) }},
	dtFloat64: {8, func(o binary.ByteOrder, b []byte) float64 { return math.Float64frombits(o.Uint64(b)) }},
}

// Header is the subset of the NIfTI-1 header needed to lay out a volume.
type Header struct {
	// Dims are the axis lengths, dim[1] through dim[dim[0]].
	Dims []int
	// PixDims are the voxel spacings matching Dims.
	PixDims []float64
	// Datatype is the NIfTI datatype code.
	Datatype int16
	// Bitpix is the number of bits per voxel.
	Bitpix int16
	// VoxOffset is the byte offset of the voxel data.
	VoxOffset float64
	// SclSlope and SclInter scale stored values; a zero slope means the
	// values are used as stored.
	SclSlope float64
	SclInter float64
	// Magic is "n+1" for single-file or "ni1" for pair images.
	Magic string
	// ByteOrder is the byte order the header, and so the voxels, use.
	ByteOrder binary.ByteOrder
}

// scale applies scl_slope and scl_inter in place.
func (h *Header) scale(data []float64) {
	if h.SclSlope == 0 || math.IsNaN(h.SclSlope) || math.IsInf(h.SclSlope, 0) {
		return
	}
	if h.SclSlope == 1 && h.SclInter == 0 {
		return
	}
	for i, x := range data {
		data[i] = x*h.SclSlope + h.SclInter
	}
}

// libraryReadable reports whether the nifti library decodes the voxels as
// stored. It picks a decoder from bitpix alone and assumes little-endian
// unsigned integers or IEEE floats.
func (h *Header) libraryReadable() bool {
	if h.ByteOrder != binary.LittleEndian {
		return false
	}
	switch h.Datatype {
	case dtUint8:
		return h.Bitpix == 8
	case dtUint16:
		return h.Bitpix == 16
	case dtFloat32:
		return h.Bitpix == 32
	case dtFloat64:
		return h.Bitpix == 64
	}
	return false
}

// ReadHeader reads the NIfTI-1 header of a .nii or .nii.gz file.
func ReadHeader(path string) (*Header, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	br := bufio.NewReader(fh)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	buf := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrNotNIfTI, err)
	}
	return parseHeader(buf)
}

func parseHeader(buf []byte) (*Header, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if int32(order.Uint32(buf[0:4])) != niftiHeaderSize {
		order = binary.BigEndian
		if int32(order.Uint32(buf[0:4])) != niftiHeaderSize {
			return nil, ErrNotNIfTI
		}
	}

	ndim := int(int16(order.Uint16(buf[40:42])))
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("%w: dim[0] = %d", ErrNotNIfTI, ndim)
	}

	f32 := func(off int) float64 { return float64(math.Float32frombits(order.Uint32(buf[off:]))) }
	h := &Header{
		Dims:      make([]int, ndim),
		PixDims:   make([]float64, ndim),
		Datatype:  int16(order.Uint16(buf[70:72])),
		Bitpix:    int16(order.Uint16(buf[72:74])),
		VoxOffset: f32(108),
		SclSlope:  f32(112),
		SclInter:  f32(116),
		Magic:     string(trimNul(buf[344:348])),
		ByteOrder: order,
	}
	for i := 0; i < ndim; i++ {
		h.Dims[i] = int(int16(order.Uint16(buf[42+2*i:])))
		if h.Dims[i] < 1 {
			h.Dims[i] = 1
		}
		h.PixDims[i] = f32(80 + 4*i)
	}
	return h, nil
}

func trimNul(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// LoadNIfTI reads a NIfTI-1 image into a column-major volume with the
// header's dimensions, applying scl_slope and scl_inter. Little-endian
// unsigned and float images are read through the nifti library, whose
// panics are turned into errors naming the file; other integer types and
// big-endian images are decoded from the voxel bytes.
func LoadNIfTI(path string) (*models.Volume, error) {
	hdr, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	codec, ok := voxelCodecs[hdr.Datatype]
	if !ok {
		return nil, fmt.Errorf("%s: %w %d", path, ErrUnsupportedDatatype, hdr.Datatype)
	}

	src, cleanup, err := plainCopy(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	defer cleanup()

	vol := models.NewVolume(hdr.Dims...)
	if len(hdr.PixDims) >= 3 {
		vol.VoxelSize = append([]float64(nil), hdr.PixDims[:3]...)
	}

	if hdr.libraryReadable() {
		img, err := safelyLoad(src)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		nx, ny, nz := axis(hdr.Dims, 0), axis(hdr.Dims, 1), axis(hdr.Dims, 2)
		plane := nx * ny
		block := plane * nz
		if err := safelyFill(img, vol.Data, nx, plane, block, ny, nz); err != nil {
			return nil, fmt.Errorf("failed to read voxels of %s: %w", path, err)
		}
	} else if err := readVoxels(src, hdr, codec, vol.Data); err != nil {
		return nil, fmt.Errorf("failed to read voxels of %s: %w", path, err)
	}

	hdr.scale(vol.Data)
	return vol, nil
}

// readVoxels decodes len(dst) voxels stored in file order, which is
// column-major.
func readVoxels(src string, hdr *Header, codec voxelCodec, dst []float64) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	off := int(hdr.VoxOffset)
	if off < niftiHeaderSize {
		off = niftiHeaderSize
	}
	if need := off + len(dst)*codec.size; len(data) < need {
		return fmt.Errorf("%d bytes, want %d for %d voxels", len(data), need, len(dst))
	}
	for i := range dst {
		p := off + i*codec.size
		dst[i] = codec.decode(hdr.ByteOrder, data[p:p+codec.size])
	}
	return nil
}

// plainCopy returns a path the nifti library can read directly. Gzipped
// images are inflated into a temporary file that cleanup removes.
func plainCopy(path string) (string, func(), error) {
	noop := func() {}
	fh, err := os.Open(path)
	if err != nil {
		return "", noop, err
	}
	defer fh.Close()

	br := bufio.NewReader(fh)
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return path, noop, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return "", noop, err
	}
	defer zr.Close()

	tmp, err := os.CreateTemp("", "mrewave-*.nii")
	if err != nil {
		return "", noop, err
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, zr); err != nil {
		tmp.Close()
		cleanup()
		return "", noop, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	return tmp.Name(), cleanup, nil
}

func axis(dims []int, i int) int {
	if i < len(dims) {
		return dims[i]
	}
	return 1
}

// safelyLoad consumes panics emitted by the nifti library on malformed
// input.
func safelyLoad(path string) (img *nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	img = new(nifti.Nifti1Image)
	img.LoadImage(path, true)
	return img, nil
}

func safelyFill(img *nifti.Nifti1Image, dst []float64, nx, plane, block, ny, nz int) (err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	// Axes beyond the third are flattened into the library's t index,
	// which matches column-major order.
	for i := range dst {
		x := i % nx
		y := (i / nx) % ny
		z := (i / plane) % nz
		t := i / block
		dst[i] = float64(img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t)))
	}
	return nil
}
