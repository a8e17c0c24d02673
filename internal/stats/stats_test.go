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

package stats

import (
	"math"
	"testing"
)

type statsTestCase struct {
	data      []float32
	noData    float64
	hasNoData bool
	min, max  float32
	mean      float32
	median    float32
	valid     int
}

func TestNewStats(t *testing.T) {
	nan := float32(math.NaN())
	tcs := []statsTestCase{
		{[]float32{1, 2, 3, 4, 5}, 0, false, 1, 5, 3, 3, 5},
		{[]float32{-999, 2, 4, -999}, -999, true, 2, 4, 3, 3, 2},
		{[]float32{nan, 7, nan}, 0, false, 7, 7, 7, 7, 1},
		{[]float32{-999, 1, 2, 3}, -999, false, -999, 3, -248.25, 1.5, 4},
	}
	for i, tc := range tcs {
		s := NewStats(tc.data, tc.noData, tc.hasNoData)
		if s.Min != tc.min || s.Max != tc.max {
			t.Errorf("%d: min,max=%f,%f; want %f,%f", i, s.Min, s.Max, tc.min, tc.max)
		}
		if math.Abs(float64(s.Mean-tc.mean)) > 1e-4 {
			t.Errorf("%d: mean=%f; want %f", i, s.Mean, tc.mean)
		}
		if s.Median != tc.median {
			t.Errorf("%d: median=%f; want %f", i, s.Median, tc.median)
		}
		if s.Valid != tc.valid || s.Valid+s.Invalid != len(tc.data) {
			t.Errorf("%d: valid=%d invalid=%d; want valid %d of %d", i, s.Valid, s.Invalid, tc.valid, len(tc.data))
		}
	}
}

func TestNewStatsAllInvalid(t *testing.T) {
	s := NewStats([]float32{-999, -999}, -999, true)
	if s.Valid != 0 || !s.LowDynamicRange() {
		t.Errorf("valid=%d lowDynamicRange=%v; want 0, true", s.Valid, s.LowDynamicRange())
	}
}

func TestPercentileRange(t *testing.T) {
	data := make([]float32, 1001)
	for i := range data {
		data[i] = float32(i)
	}
	s := NewStats(data, 0, false)
	lo, hi := PercentileRange(data, s, 0.02, 0.98)
	if math.Abs(float64(lo-20)) > 1.5 || math.Abs(float64(hi-980)) > 1.5 {
		t.Errorf("range=[%f,%f]; want about [20,980]", lo, hi)
	}
}
