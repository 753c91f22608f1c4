package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"mrewave/internal/models"
)

const voxOffset = 352

// EncodeNIfTI serializes v as a single-file little-endian float32 NIfTI-1
// image. Volumes may have at most seven axes.
func EncodeNIfTI(v *models.Volume) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if len(v.Shape) < 1 || len(v.Shape) > 7 {
		return nil, fmt.Errorf("NIfTI-1 holds 1 to 7 axes, volume has %d", len(v.Shape))
	}

	order := binary.LittleEndian
	hdr := make([]byte, niftiHeaderSize)
	order.PutUint32(hdr[0:], niftiHeaderSize)
	order.PutUint16(hdr[40:], uint16(len(v.Shape)))
	for i, n := range v.Shape {
		if n > math.MaxInt16 {
			return nil, fmt.Errorf("axis %d of length %d exceeds the NIfTI-1 limit", i, n)
		}
		order.PutUint16(hdr[42+2*i:], uint16(n))
	}
	order.PutUint16(hdr[70:], dtFloat32)
	order.PutUint16(hdr[72:], 32)
	order.PutUint32(hdr[76:], math.Float32bits(1)) // qfac
	for i := range v.Shape {
		spacing := float32(1)
		if i < len(v.VoxelSize) && v.VoxelSize[i] > 0 {
			spacing = float32(v.VoxelSize[i])
		}
		order.PutUint32(hdr[80+4*i:], math.Float32bits(spacing))
	}
	order.PutUint32(hdr[108:], math.Float32bits(voxOffset))
	order.PutUint32(hdr[112:], math.Float32bits(1)) // scl_slope
	copy(hdr[344:], "n+1\x00")

	var buf bytes.Buffer
	buf.Grow(voxOffset + 4*len(v.Data))
	buf.Write(hdr)
	buf.Write(make([]byte, voxOffset-niftiHeaderSize))
	word := make([]byte, 4)
	for _, x := range v.Data {
		order.PutUint32(word, math.Float32bits(float32(x)))
		buf.Write(word)
	}
	return buf.Bytes(), nil
}

// WriteNIfTI writes v to path, gzip-compressed when the name ends in .gz.
func WriteNIfTI(path string, v *models.Volume) error {
	raw, err := EncodeNIfTI(v)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if strings.HasSuffix(path, ".gz") {
		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		if _, err := zw.Write(raw); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		raw = gz.Bytes()
	}
	return os.WriteFile(path, raw, 0644)
}
