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
	"math"
	"math/cmplx"
	"strconv"

	"github.com/zmadru/SatChange/internal/raster"
	"gonum.org/v1/gonum/dsp/fourier"
)

// One-sided power spectral density of the mean-removed series with a boxcar
// window and density scaling at unit sampling frequency. Returns depth/2+1 bins
// for the frequencies k/depth
type Periodogram struct {
	Base
}

var _ Transform = (*Periodogram)(nil)
var _ SideChannel = (*Periodogram)(nil)

func init() { SetFactory(func() Transform { return NewPeriodogram() }) }

func NewPeriodogram() *Periodogram {
	return &Periodogram{Base: Base{Type: "periodogram"}}
}

func (t *Periodogram) UnmarshalJSON(data []byte) error {
	type defaults Periodogram
	def := defaults(*NewPeriodogram())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = Periodogram(def)
	return nil
}

func (t *Periodogram) Init(depth int) error {
	if depth < 2 {
		return fmt.Errorf("periodogram: series of length %d too short", depth)
	}
	return nil
}

func (t *Periodogram) OutDepth(depth int) int   { return depth/2 + 1 }
func (t *Periodogram) OutputType() raster.DType { return raster.Int16 }
func (t *Periodogram) HasDiagnostics() bool     { return false }
func (t *Periodogram) Naming() Naming           { return Naming{Main: "_Periodogram"} }

// Lists the period 1/f of every output bin, one per line. The DC bin has an infinite period
func (t *Periodogram) SideChannel(depth int) (suffix string, lines []string) {
	lines = make([]string, t.OutDepth(depth))
	for k := range lines {
		lines[k] = formatPeriod(float64(depth) / float64(k))
	}
	return "_Periodogram_freqs.txt", lines
}

func formatPeriod(p float64) string {
	if math.IsInf(p, 1) {
		return "inf"
	}
	return strconv.FormatFloat(p, 'g', -1, 64)
}

func (t *Periodogram) NewKernel(depth int) (Kernel, error) {
	fft := fourier.NewFFT(depth)
	centered := make([]float64, depth)
	coeffs := make([]complex128, depth/2+1)
	return func(in, out []float64) (Diagnostics, error) {
		mean := 0.0
		for _, v := range in {
			mean += v
		}
		mean /= float64(depth)
		for i, v := range in {
			centered[i] = v - mean
		}
		fft.Coefficients(coeffs, centered)
		scale := 1 / float64(depth)
		for k, c := range coeffs {
			a := cmplx.Abs(c)
			out[k] = a * a * scale
			if k > 0 && !(depth%2 == 0 && k == depth/2) {
				out[k] *= 2 // fold the negative frequencies
			}
		}
		return Diagnostics{}, nil
	}, nil
}
