// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package transform

import (
	"encoding/json"
	"fmt"
	"math/cmplx"

	"github.com/zmadru/SatChange/internal/raster"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Band-limiting FFT filter. Finds the strongest frequency above Threshold
// cycles per sample, zeroes every component with a higher absolute frequency,
// and returns the magnitude of the inverse transform.
//
// Odd-length series are padded to even length by repeating the last sample,
// and the result is truncated back to the input length. A series with no
// frequency above the threshold passes through unchanged.
type FFTFilter struct {
	Base
	Threshold float64 `json:"threshold"`
}

var _ Transform = (*FFTFilter)(nil)

func init() { SetFactory(func() Transform { return NewFFTFilterDefault() }) }

func NewFFTFilterDefault() *FFTFilter { return NewFFTFilter(0.05) }

func NewFFTFilter(threshold float64) *FFTFilter {
	return &FFTFilter{Base: Base{Type: "fft"}, Threshold: threshold}
}

func (t *FFTFilter) UnmarshalJSON(data []byte) error {
	type defaults FFTFilter
	def := defaults(*NewFFTFilterDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = FFTFilter(def)
	return nil
}

func (t *FFTFilter) Init(depth int) error {
	if depth < 3 {
		return fmt.Errorf("fft: series of length %d too short", depth)
	}
	if t.Threshold < 0 || t.Threshold >= 0.5 {
		return fmt.Errorf("fft: threshold %g outside [0,0.5)", t.Threshold)
	}
	return nil
}

func (t *FFTFilter) OutDepth(depth int) int   { return depth }
func (t *FFTFilter) OutputType() raster.DType { return raster.Float32 }
func (t *FFTFilter) HasDiagnostics() bool     { return true }
func (t *FFTFilter) Naming() Naming {
	return Naming{Main: "_FFT_", RMSE: "_fftrmse_", Pearson: "_fftpearson_"}
}

// Sample frequency of bin k for an n-point transform, negative for the upper half
func binFreq(k, n int) float64 {
	if k < (n+1)/2 {
		return float64(k) / float64(n)
	}
	return float64(k-n) / float64(n)
}

func (t *FFTFilter) NewKernel(depth int) (Kernel, error) {
	n := depth + depth%2
	fft := fourier.NewCmplxFFT(n)
	seq := make([]complex128, n)
	coeffs := make([]complex128, n)

	return func(in, out []float64) (Diagnostics, error) {
		for i, v := range in {
			seq[i] = complex(v, 0)
		}
		if n > depth {
			seq[n-1] = complex(in[depth-1], 0)
		}
		fft.Coefficients(coeffs, seq)

		peak, peakPower := -1.0, -1.0
		for k, c := range coeffs {
			f := binFreq(k, n)
			if f <= t.Threshold {
				continue
			}
			a := cmplx.Abs(c)
			if p := a * a; p > peakPower {
				peak, peakPower = f, p
			}
		}
		if peak < 0 {
			copy(out, in)
			return Compare(in, out), nil
		}

		for k := range coeffs {
			if f := binFreq(k, n); f > peak || -f > peak {
				coeffs[k] = 0
			}
		}
		fft.Sequence(seq, coeffs)
		scale := 1 / float64(n)
		for i := range out {
			out[i] = cmplx.Abs(seq[i]) * scale
		}
		return Compare(in, out), nil
	}, nil
}
