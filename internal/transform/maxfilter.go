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
	"math"

	"github.com/zmadru/SatChange/internal/raster"
)

// Max-envelope filter, a four stage cascade of centred rolling windows:
//
//  1. samples <= 0 are replaced by the max of a 3-window (at least 1 value)
//  2. a 7-window mean of stage 1 is the threshold (at least 4 values)
//  3. stage 1 values <= threshold are replaced by the 7-window max (at least 4 values)
//  4. the result is smoothed by a 7-window mean (at least 4 values)
//
// NaNs are skipped inside windows. A window with too few values yields NaN.
type MaxFilter struct {
	Base
}

var _ Transform = (*MaxFilter)(nil)

func init() { SetFactory(func() Transform { return NewMaxFilter() }) }

func NewMaxFilter() *MaxFilter {
	return &MaxFilter{Base: Base{Type: "max"}}
}

func (t *MaxFilter) UnmarshalJSON(data []byte) error {
	type defaults MaxFilter
	def := defaults(*NewMaxFilter())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = MaxFilter(def)
	return nil
}

func (t *MaxFilter) Init(depth int) error     { return nil }
func (t *MaxFilter) OutDepth(depth int) int   { return depth }
func (t *MaxFilter) OutputType() raster.DType { return raster.Float32 }
func (t *MaxFilter) HasDiagnostics() bool     { return true }
func (t *MaxFilter) Naming() Naming {
	return Naming{Main: "_max", RMSE: "_maxrmse_", Pearson: "_maxpearson_"}
}

const (
	envelopeWindow     = 7
	envelopeMinPeriods = 4
)

func (t *MaxFilter) NewKernel(depth int) (Kernel, error) {
	stage1 := make([]float64, depth)
	threshold := make([]float64, depth)
	maxmax := make([]float64, depth)
	filled := make([]float64, depth)

	return func(in, out []float64) (Diagnostics, error) {
		rollingMax(in, 3, 1, stage1)
		for i, v := range in {
			if !(v <= 0) {
				stage1[i] = v
			}
		}
		rollingMean(stage1, envelopeWindow, envelopeMinPeriods, threshold)
		rollingMax(stage1, envelopeWindow, envelopeMinPeriods, maxmax)
		for i, v := range stage1 {
			if v <= threshold[i] {
				filled[i] = maxmax[i]
			} else {
				filled[i] = v
			}
		}
		rollingMean(filled, envelopeWindow, envelopeMinPeriods, out)
		return Compare(in, out), nil
	}, nil
}

// Centred window bounds [lo,hi) of the given odd size around i, cut at the series ends
func centredWindow(i, size, n int) (lo, hi int) {
	lo, hi = i-size/2, i+size/2+1
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

// Centred rolling max skipping NaNs. NaN where fewer than minPeriods values are valid
func rollingMax(x []float64, size, minPeriods int, out []float64) {
	for i := range x {
		lo, hi := centredWindow(i, size, len(x))
		count, m := 0, math.Inf(-1)
		for _, v := range x[lo:hi] {
			if v == v {
				count++
				if v > m {
					m = v
				}
			}
		}
		if count < minPeriods {
			m = math.NaN()
		}
		out[i] = m
	}
}

// Centred rolling mean skipping NaNs. NaN where fewer than minPeriods values are valid
func rollingMean(x []float64, size, minPeriods int, out []float64) {
	for i := range x {
		lo, hi := centredWindow(i, size, len(x))
		count, sum := 0, 0.0
		for _, v := range x[lo:hi] {
			if v == v {
				count++
				sum += v
			}
		}
		if count < minPeriods {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(count)
		}
	}
}
