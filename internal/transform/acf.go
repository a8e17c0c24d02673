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

	"github.com/zmadru/SatChange/internal/raster"
)

// Sample autocorrelation at lags 0..NLags, scaled and truncated for 16-bit storage
type ACF struct {
	Base
	NLags int     `json:"nlags"`
	Scale float64 `json:"scale"`
}

var _ Transform = (*ACF)(nil)

func init() { SetFactory(func() Transform { return NewACFDefault() }) } // register for JSON decoding

func NewACFDefault() *ACF { return NewACF(364) }

func NewACF(nlags int) *ACF {
	return &ACF{Base: Base{Type: "acf"}, NLags: nlags, Scale: 10000}
}

// Unmarshal the type from JSON with default values for missing entries
func (t *ACF) UnmarshalJSON(data []byte) error {
	type defaults ACF
	def := defaults(*NewACFDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = ACF(def)
	return nil
}

func (t *ACF) Init(depth int) error {
	if t.NLags < 0 || t.NLags >= depth {
		return fmt.Errorf("acf: nlags %d outside 0..%d for series of length %d", t.NLags, depth-1, depth)
	}
	if t.Scale <= 0 {
		return fmt.Errorf("acf: scale %g must be positive", t.Scale)
	}
	return nil
}

func (t *ACF) OutDepth(depth int) int   { return t.NLags + 1 }
func (t *ACF) OutputType() raster.DType { return raster.Int16 }
func (t *ACF) HasDiagnostics() bool     { return false }
func (t *ACF) Naming() Naming           { return Naming{Main: "_ACF1_"} }

func (t *ACF) NewKernel(depth int) (Kernel, error) {
	centered := make([]float64, depth)
	return func(in, out []float64) (Diagnostics, error) {
		autocorrelation(in, centered, out)
		for k := range out {
			out[k] = math.Trunc(out[k] * t.Scale)
		}
		return Diagnostics{}, nil
	}, nil
}

// Writes the biased autocorrelation of x at lags 0..len(acf)-1 into acf,
// using centered as scratch space of len(x). A constant series has
// lag 0 equal to one and all other lags zero
func autocorrelation(x, centered, acf []float64) {
	n := len(x)
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)
	for i, v := range x {
		centered[i] = v - mean
	}

	var c0 float64
	for _, v := range centered {
		c0 += v * v
	}
	if c0 == 0 {
		for k := range acf {
			acf[k] = 0
		}
		acf[0] = 1
		return
	}
	acf[0] = 1
	for k := 1; k < len(acf); k++ {
		var ck float64
		for i := 0; i+k < n; i++ {
			ck += centered[i] * centered[i+k]
		}
		acf[k] = ck / c0
	}
}
