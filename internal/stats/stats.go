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
	"fmt"
	"math"

	"github.com/valyala/fastrand"
	"github.com/zmadru/SatChange/internal/qsort"
	"gonum.org/v1/gonum/stat"
)

// Number of samples drawn for the approximate median
const numSamples = 64 * 1024

// Basic statistics over the valid values of a raster array.
// Values equal to the nodata sentinel and NaNs are excluded.
type Stats struct {
	Min    float32
	Max    float32
	Mean   float32
	StdDev float32
	Median float32 // approximate for large arrays, sampled

	Valid   int // number of values included
	Invalid int // number of nodata or NaN values skipped
}

// Calculate statistics for a data array, skipping NaNs and, if hasNoData is set, the nodata value
func NewStats(data []float32, noData float64, hasNoData bool) *Stats {
	s := &Stats{Min: float32(math.NaN()), Max: float32(math.NaN()), Mean: float32(math.NaN()),
		StdDev: float32(math.NaN()), Median: float32(math.NaN())}

	valid := make([]float64, 0, len(data))
	for _, d := range data {
		if d != d || (hasNoData && float64(d) == noData) {
			s.Invalid++
			continue
		}
		valid = append(valid, float64(d))
	}
	s.Valid = len(valid)
	if s.Valid == 0 {
		return s
	}

	min, max := valid[0], valid[0]
	for _, v := range valid[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean, stdDev := stat.PopMeanStdDev(valid, nil)
	s.Min, s.Max, s.Mean, s.StdDev = float32(min), float32(max), float32(mean), float32(stdDev)
	s.Median = approxMedian(valid)
	return s
}

// Median of the values, subsampled with replacement if there are more than numSamples
func approxMedian(valid []float64) float32 {
	n := len(valid)
	if n <= numSamples {
		samples := make([]float32, n)
		for i, v := range valid {
			samples[i] = float32(v)
		}
		return qsort.QSelectMedianFloat32(samples)
	}
	samples := make([]float32, numSamples)
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = float32(valid[rng.Uint32n(uint32(n))])
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Pretty print statistics
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Median %.6g (%d valid, %d nodata)",
		s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Valid, s.Invalid)
}

// True if all valid values are identical or there are none
func (s *Stats) LowDynamicRange() bool {
	return s.Valid == 0 || s.Max-s.Min < 1e-8
}
