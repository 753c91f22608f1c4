package sample

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/dsp/fourier"

	"mrewave/pkg/labeled"
)

// TemporalHarmonic returns the k-th temporal Fourier coefficient of the
// wave field at every voxel, normalized by the number of timesteps. The
// result has the canonical axes without timesteps.
func (s *Sample) TemporalHarmonic(k int) (*labeled.DataArray, error) {
	wave := s.Wave()
	if wave == nil {
		return nil, ErrNotLoaded
	}
	nt := wave.Size("timesteps")
	if k < 0 || k >= nt {
		return nil, fmt.Errorf("harmonic %d out of range for %d timesteps", k, nt)
	}

	order := make([]string, 0, len(wave.Dims))
	for _, d := range wave.Dims {
		if d != "timesteps" {
			order = append(order, d)
		}
	}
	series, err := wave.Transpose(append(order, "timesteps")...)
	if err != nil {
		return nil, err
	}

	// With timesteps innermost, each voxel's series is contiguous and the
	// reduction picks one coefficient from it.
	fft := fourier.NewCmplxFFT(nt)
	coeffs := make([]complex128, nt)
	scale := complex(1/float64(nt), 0)
	out, err := series.Reduce(func(seq []complex128) complex128 {
		coeffs = fft.Coefficients(coeffs, seq)
		return coeffs[k] * scale
	}, "timesteps")
	if err != nil {
		return nil, err
	}
	out.Name = WaveArray + "_harmonic"
	out.Complex = true
	out.Attrs["harmonic"] = strconv.Itoa(k)
	return out, nil
}
