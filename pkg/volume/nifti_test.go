package volume

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrewave/internal/models"
)

// encodeNIfTI builds a single-file float32 NIfTI-1 image.
func encodeNIfTI(dims []int, pixdim []float32, data []float32) []byte {
	var payload bytes.Buffer
	for _, v := range data {
		_ = binary.Write(&payload, binary.LittleEndian, v)
	}
	return encodeTyped(binary.LittleEndian, dtFloat32, 32, 1, 0, dims, pixdim, payload.Bytes())
}

// encodeTyped builds a single-file NIfTI-1 image around already encoded
// voxel bytes.
func encodeTyped(order binary.ByteOrder, datatype, bitpix int16, slope, inter float32, dims []int, pixdim []float32, payload []byte) []byte {
	hdr := make([]byte, niftiHeaderSize)
	order.PutUint32(hdr[0:], niftiHeaderSize)
	order.PutUint16(hdr[40:], uint16(len(dims)))
	for i, d := range dims {
		order.PutUint16(hdr[42+2*i:], uint16(d))
	}
	order.PutUint16(hdr[70:], uint16(datatype))
	order.PutUint16(hdr[72:], uint16(bitpix))
	order.PutUint32(hdr[76:], math.Float32bits(1))
	for i, p := range pixdim {
		order.PutUint32(hdr[80+4*i:], math.Float32bits(p))
	}
	order.PutUint32(hdr[108:], math.Float32bits(352))
	order.PutUint32(hdr[112:], math.Float32bits(slope))
	order.PutUint32(hdr[116:], math.Float32bits(inter))
	copy(hdr[344:], "n+1\x00")

	var buf bytes.Buffer
	buf.Write(hdr)
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write(payload)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, raw []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func TestReadHeader(t *testing.T) {
	dir := t.TempDir()
	raw := encodeNIfTI([]int{4, 3, 2, 3, 1}, []float32{1.5, 1.5, 2}, make([]float32, 72))

	plain := filepath.Join(dir, "storage.nii")
	require.NoError(t, os.WriteFile(plain, raw, 0644))

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	packed := filepath.Join(dir, "storage.nii.gz")
	require.NoError(t, os.WriteFile(packed, gz.Bytes(), 0644))

	for _, path := range []string{plain, packed} {
		h, err := ReadHeader(path)
		require.NoError(t, err, path)
		assert.Equal(t, []int{4, 3, 2, 3, 1}, h.Dims)
		assert.InDelta(t, 1.5, h.PixDims[0], 1e-9)
		assert.InDelta(t, 2.0, h.PixDims[2], 1e-9)
		assert.Equal(t, int16(16), h.Datatype)
		assert.Equal(t, int16(32), h.Bitpix)
		assert.Equal(t, 352.0, h.VoxOffset)
		assert.Equal(t, 1.0, h.SclSlope)
		assert.Equal(t, binary.LittleEndian, h.ByteOrder)
		assert.Equal(t, "n+1", h.Magic)
	}
}

func TestReadHeaderRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.nii")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{7}, 400), 0644))

	_, err := ReadHeader(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotNIfTI))

	short := filepath.Join(t.TempDir(), "short.nii")
	require.NoError(t, os.WriteFile(short, []byte{1, 2, 3}, 0644))
	_, err = ReadHeader(short)
	assert.True(t, errors.Is(err, ErrNotNIfTI))
}

func TestLoadNIfTI(t *testing.T) {
	dims := []int{3, 2, 2}
	data := make([]float32, 12)
	for i := range data {
		data[i] = float32(i) + 0.25
	}
	path := filepath.Join(t.TempDir(), "loss.nii")
	require.NoError(t, os.WriteFile(path, encodeNIfTI(dims, []float32{1, 1, 1}, data), 0644))

	vol, err := LoadNIfTI(path)
	require.NoError(t, err)
	assert.Equal(t, dims, vol.Shape)
	assert.InDelta(t, 0.25, vol.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 1.25, vol.At(1, 0, 0), 1e-6)
	assert.InDelta(t, 3.25, vol.At(0, 1, 0), 1e-6)
	assert.InDelta(t, 6.25, vol.At(0, 0, 1), 1e-6)
}

func TestLoadNIfTIScalesSignedIntegers(t *testing.T) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:], uint16(0xfffb)) // -5
	binary.LittleEndian.PutUint16(payload[2:], 7)
	path := writeFile(t, "storage.nii",
		encodeTyped(binary.LittleEndian, dtInt16, 16, 2, 0, []int{2, 1, 1}, []float32{1, 1, 1}, payload))

	vol, err := LoadNIfTI(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1}, vol.Shape)
	assert.Equal(t, []float64{-10, 14}, vol.Data)
}

func TestLoadNIfTIBigEndian(t *testing.T) {
	dims := []int{2, 2, 1}
	vals := []int32{-70000, 3, 0, 123456}
	payload := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(payload[4*i:], uint32(v))
	}
	path := writeFile(t, "loss.nii",
		encodeTyped(binary.BigEndian, dtInt32, 32, 0, 0, dims, []float32{1.5, 1.5, 2}, payload))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, h.ByteOrder)
	assert.Equal(t, dims, h.Dims)

	// a zero slope leaves values as stored
	vol, err := LoadNIfTI(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{-70000, 3, 0, 123456}, vol.Data)
	assert.Equal(t, 123456.0, vol.At(1, 1, 0))
	assert.InDeltaSlice(t, []float64{1.5, 1.5, 2}, vol.VoxelSize, 1e-9)

	payload = make([]byte, 8*2)
	binary.BigEndian.PutUint64(payload[0:], math.Float64bits(-0.5))
	binary.BigEndian.PutUint64(payload[8:], math.Float64bits(2.25))
	path = writeFile(t, "mu.nii",
		encodeTyped(binary.BigEndian, dtFloat64, 64, 1, 0, []int{2}, []float32{1}, payload))
	vol, err = LoadNIfTI(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.5, 2.25}, vol.Data)
}

func TestLoadNIfTIScalesLibraryPath(t *testing.T) {
	// float32 and uint8 images go through the nifti library; scaling still
	// applies.
	raw := encodeNIfTI([]int{3}, []float32{1}, []float32{0.5, -1, 4})
	binary.LittleEndian.PutUint32(raw[112:], math.Float32bits(2))
	binary.LittleEndian.PutUint32(raw[116:], math.Float32bits(1))
	vol, err := LoadNIfTI(writeFile(t, "storage.nii", raw))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, -1, 9}, vol.Data, 1e-6)

	vol, err = LoadNIfTI(writeFile(t, "mask.nii",
		encodeTyped(binary.LittleEndian, dtUint8, 8, 0, 0, []int{3}, []float32{1}, []byte{0, 200, 255})))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 200, 255}, vol.Data)
}

func TestLoadNIfTIRejectsUnsupportedDatatype(t *testing.T) {
	// DT_COMPLEX64
	path := writeFile(t, "complex.nii",
		encodeTyped(binary.LittleEndian, 32, 64, 1, 0, []int{1}, []float32{1}, make([]byte, 8)))
	_, err := LoadNIfTI(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedDatatype))
	assert.Contains(t, err.Error(), path)
}

func TestLoadNIfTITruncatedVoxels(t *testing.T) {
	path := writeFile(t, "short.nii",
		encodeTyped(binary.LittleEndian, dtInt16, 16, 1, 0, []int{4}, []float32{1}, make([]byte, 4)))
	_, err := LoadNIfTI(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadNIfTIMissingFile(t *testing.T) {
	_, err := LoadNIfTI(filepath.Join(t.TempDir(), "missing.nii"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.nii")
}

func TestWriteNIfTIRoundTrip(t *testing.T) {
	src := models.NewVolume(3, 2, 2, 3)
	for i := range src.Data {
		src.Data[i] = float64(i) - 4.5
	}
	src.VoxelSize = []float64{1.5, 1.5, 2}

	dir := t.TempDir()
	for _, name := range []string{"mu.nii", "mu.nii.gz"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteNIfTI(path, src))

		h, err := ReadHeader(path)
		require.NoError(t, err)
		assert.Equal(t, src.Shape, h.Dims)

		vol, err := LoadNIfTI(path)
		require.NoError(t, err, name)
		assert.Equal(t, src.Shape, vol.Shape)
		assert.InDeltaSlice(t, src.Data, vol.Data, 1e-6)
		assert.InDeltaSlice(t, src.VoxelSize, vol.VoxelSize, 1e-6)
	}
}

func TestEncodeNIfTIRejectsTooManyAxes(t *testing.T) {
	_, err := EncodeNIfTI(models.NewVolume(1, 1, 1, 1, 1, 1, 1, 2))
	assert.Error(t, err)
}
