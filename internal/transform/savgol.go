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

	"github.com/zmadru/SatChange/internal/raster"
	"gonum.org/v1/gonum/mat"
)

// Savitzky-Golay smoothing: a polynomial of degree PolyOrder is fitted by least
// squares over a sliding window of Window samples. The first and last Window/2
// outputs are evaluated from the polynomial fitted to the first or last window
type SavitzkyGolay struct {
	Base
	Window    int `json:"window"`
	PolyOrder int `json:"polyOrder"`

	proj *mat.Dense // maps a window onto its polynomial coefficients, read-only after Init
}

var _ Transform = (*SavitzkyGolay)(nil)

func init() { SetFactory(func() Transform { return NewSavitzkyGolayDefault() }) }

func NewSavitzkyGolayDefault() *SavitzkyGolay { return NewSavitzkyGolay(7, 2) }

func NewSavitzkyGolay(window, polyOrder int) *SavitzkyGolay {
	return &SavitzkyGolay{Base: Base{Type: "sg"}, Window: window, PolyOrder: polyOrder}
}

func (t *SavitzkyGolay) UnmarshalJSON(data []byte) error {
	type defaults SavitzkyGolay
	def := defaults(*NewSavitzkyGolayDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = SavitzkyGolay(def)
	return nil
}

func (t *SavitzkyGolay) Init(depth int) error {
	if t.Window < 1 || t.Window%2 == 0 {
		return fmt.Errorf("sg: window %d must be a positive odd number", t.Window)
	}
	if t.PolyOrder < 0 || t.PolyOrder >= t.Window {
		return fmt.Errorf("sg: polynomial order %d must be less than window %d", t.PolyOrder, t.Window)
	}
	if t.Window > depth {
		return fmt.Errorf("sg: window %d exceeds series length %d", t.Window, depth)
	}
	proj, err := savgolProjection(t.Window, t.PolyOrder)
	if err != nil {
		return fmt.Errorf("sg: %w", err)
	}
	t.proj = proj
	return nil
}

func (t *SavitzkyGolay) OutDepth(depth int) int   { return depth }
func (t *SavitzkyGolay) OutputType() raster.DType { return raster.Float32 }
func (t *SavitzkyGolay) HasDiagnostics() bool     { return true }
func (t *SavitzkyGolay) Naming() Naming {
	return Naming{Main: "_SG_", RMSE: "_SGrmse_", Pearson: "_SGpearson_"}
}

// Returns the (order+1) x window least squares projection for the polynomial
// basis 1, x, x^2, ... sampled at x = -window/2 .. window/2
func savgolProjection(window, order int) (*mat.Dense, error) {
	half := window / 2
	vander := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x, v := float64(i-half), 1.0
		for j := 0; j <= order; j++ {
			vander.Set(i, j, v)
			v *= x
		}
	}
	ones := make([]float64, window)
	for i := range ones {
		ones[i] = 1
	}
	var qr mat.QR
	qr.Factorize(vander)
	var proj mat.Dense
	if err := qr.SolveTo(&proj, false, mat.NewDiagDense(window, ones)); err != nil {
		return nil, err
	}
	return &proj, nil
}

func (t *SavitzkyGolay) NewKernel(depth int) (Kernel, error) {
	if t.proj == nil {
		return nil, fmt.Errorf("sg: not initialized")
	}
	w, half, order := t.Window, t.Window/2, t.PolyOrder
	center := mat.Row(nil, 0, t.proj) // smoothing weights at x=0
	coeffs := mat.NewVecDense(order+1, nil)

	// evaluates the polynomial fitted to in[from:from+w] at offset x from the window center
	fitEdge := func(in []float64, from int, xs []int, out []float64) {
		coeffs.MulVec(t.proj, mat.NewVecDense(w, in[from:from+w]))
		for _, i := range xs {
			x, v, sum := float64(i-from-half), 1.0, 0.0
			for j := 0; j <= order; j++ {
				sum += coeffs.AtVec(j) * v
				v *= x
			}
			out[i] = sum
		}
	}
	head, tail := make([]int, half), make([]int, half)
	for i := 0; i < half; i++ {
		head[i], tail[i] = i, depth-half+i
	}

	return func(in, out []float64) (Diagnostics, error) {
		for i := half; i < depth-half; i++ {
			sum := 0.0
			for j, c := range center {
				sum += c * in[i-half+j]
			}
			out[i] = sum
		}
		fitEdge(in, 0, head, out)
		fitEdge(in, depth-w, tail, out)
		return Compare(in, out), nil
	}, nil
}
