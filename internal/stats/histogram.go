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

// Calculate histogram of data between min and max into given bins.
// Values outside [min,max] and NaNs are not counted. Returns the number of values counted.
func Histogram(data []float32, min, max float32, bins []int32) (counted int) {
	for i := range bins {
		bins[i] = 0
	}
	if len(bins) == 0 || !(max > min) {
		return 0
	}
	scale := float32(len(bins)-1) / (max - min)
	for _, d := range data {
		if d != d || d < min || d > max {
			continue
		}
		bins[int((d-min)*scale)]++
		counted++
	}
	return counted
}

// Returns the approximate value below which the given fraction of the
// histogrammed values fall. Resolution is one bin.
func HistogramPercentile(bins []int32, min, max float32, counted int, fraction float32) float32 {
	if counted == 0 || len(bins) < 2 {
		return min
	}
	target := int32(float32(counted) * fraction)
	binWidth := (max - min) / float32(len(bins)-1)
	sum := int32(0)
	for i, b := range bins {
		sum += b
		if sum > target {
			return min + float32(i)*binWidth
		}
	}
	return max
}

// Returns the low and high percentile bounds of the valid data, using a histogram with 4096 bins.
// Used to clip outliers when rendering previews.
func PercentileRange(data []float32, s *Stats, low, high float32) (lo, hi float32) {
	if s.LowDynamicRange() {
		return s.Min, s.Max
	}
	bins := make([]int32, 4096)
	counted := Histogram(data, s.Min, s.Max, bins)
	lo = HistogramPercentile(bins, s.Min, s.Max, counted, low)
	hi = HistogramPercentile(bins, s.Min, s.Max, counted, high)
	if !(hi > lo) {
		return s.Min, s.Max
	}
	return lo, hi
}
