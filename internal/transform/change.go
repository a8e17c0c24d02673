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

// Change detector reducing each series to a mask value of 1 (change) or 0.
//
// Heuristics:
//
//	balance     the share of positive or of non-positive samples is below Sensitivity
//	halfperiod  for consecutive cycles of Period samples, the max of the second half of a
//	            cycle falls below the min of the first half of the previous cycle, or the min
//	            of its first half exceeds the max of the second half of the previous cycle
//	halves      summed magnitudes of the two series halves differ by more than Ratio,
//	            relative to the larger one
type ChangeDetector struct {
	Base
	Heuristic   string  `json:"heuristic"`
	Sensitivity float64 `json:"sensitivity"`
	Period      int     `json:"period"`
	Ratio       float64 `json:"ratio"`
}

var _ Transform = (*ChangeDetector)(nil)

func init() { SetFactory(func() Transform { return NewChangeDetectorDefault() }) }

func NewChangeDetectorDefault() *ChangeDetector { return NewChangeDetector("balance", 0.2) }

func NewChangeDetector(heuristic string, sensitivity float64) *ChangeDetector {
	return &ChangeDetector{
		Base:        Base{Type: "change"},
		Heuristic:   heuristic,
		Sensitivity: sensitivity,
		Period:      365,
		Ratio:       0.3,
	}
}

func (t *ChangeDetector) UnmarshalJSON(data []byte) error {
	type defaults ChangeDetector
	def := defaults(*NewChangeDetectorDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = ChangeDetector(def)
	return nil
}

// Supported change heuristics
var ChangeHeuristics = []string{"balance", "halfperiod", "halves"}

func (t *ChangeDetector) Init(depth int) error {
	switch t.Heuristic {
	case "balance":
		if t.Sensitivity < 0 || t.Sensitivity > 1 {
			return fmt.Errorf("change: sensitivity %g outside [0,1]", t.Sensitivity)
		}
	case "halfperiod":
		if t.Period < 2 || 2*t.Period > depth {
			return fmt.Errorf("change: period %d needs 2..%d for series of length %d", t.Period, depth/2, depth)
		}
	case "halves":
		if depth < 2 {
			return fmt.Errorf("change: series of length %d cannot be halved", depth)
		}
		if t.Ratio < 0 {
			return fmt.Errorf("change: ratio %g must not be negative", t.Ratio)
		}
	default:
		return fmt.Errorf("change: unknown heuristic '%s', want one of %v", t.Heuristic, ChangeHeuristics)
	}
	return nil
}

func (t *ChangeDetector) OutDepth(depth int) int   { return 1 }
func (t *ChangeDetector) OutputType() raster.DType { return raster.Byte }
func (t *ChangeDetector) HasDiagnostics() bool     { return false }
func (t *ChangeDetector) Naming() Naming           { return Naming{Main: "_mask"} }

func (t *ChangeDetector) NewKernel(depth int) (Kernel, error) {
	var detect func([]float64) bool
	switch t.Heuristic {
	case "balance":
		detect = t.balance
	case "halfperiod":
		detect = t.halfPeriod
	case "halves":
		detect = t.halves
	default:
		return nil, fmt.Errorf("change: unknown heuristic '%s'", t.Heuristic)
	}
	return func(in, out []float64) (Diagnostics, error) {
		out[0] = 0
		if detect(in) {
			out[0] = 1
		}
		return Diagnostics{}, nil
	}, nil
}

func (t *ChangeDetector) balance(x []float64) bool {
	positives := 0
	for _, v := range x {
		if v > 0 {
			positives++
		}
	}
	n := float64(len(x))
	return float64(positives)/n < t.Sensitivity || float64(len(x)-positives)/n < t.Sensitivity
}

func (t *ChangeDetector) halfPeriod(x []float64) bool {
	half := t.Period / 2
	prevLo, prevHi := 0.0, 0.0
	for c := 0; (c+1)*t.Period <= len(x); c++ {
		cycle := x[c*t.Period : (c+1)*t.Period]
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range cycle[:half] {
			lo = math.Min(lo, v)
		}
		for _, v := range cycle[half:] {
			hi = math.Max(hi, v)
		}
		if c > 0 && (hi < prevLo || lo > prevHi) {
			return true
		}
		prevLo, prevHi = lo, hi
	}
	return false
}

func (t *ChangeDetector) halves(x []float64) bool {
	half := len(x) / 2
	s1, s2 := 0.0, 0.0
	for _, v := range x[:half] {
		s1 += math.Abs(v)
	}
	for _, v := range x[half:] {
		s2 += math.Abs(v)
	}
	m := math.Max(s1, s2)
	if m == 0 {
		return false
	}
	return math.Abs(s1-s2)/m > t.Ratio
}
