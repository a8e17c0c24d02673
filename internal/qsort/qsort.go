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

package qsort

// Select kth lowest element (1-based) from an array of float32.
// Partially reorders the array. Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	k-- // zero-based from here on
	for left < right {
		pivot := a[(left+right)>>1]
		l, r := left, right
		for l <= r {
			for a[l] < pivot {
				l++
			}
			for a[r] > pivot {
				r--
			}
			if l <= r {
				a[l], a[r] = a[r], a[l]
				l++
				r--
			}
		}
		if k <= r {
			right = r
		} else if k >= l {
			left = l
		} else {
			break
		}
	}
	return a[k]
}

// Select median of an array of float32. For even lengths, returns the mean
// of the two central elements. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	upper := QSelectFloat32(a, n/2+1)
	if n&1 != 0 {
		return upper
	}
	// after selection, everything left of n/2 is <= upper; the lower median is their maximum
	lower := a[0]
	for _, v := range a[1 : n/2] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + upper)
}

// Removes NaNs from the array in place and returns the shortened slice
func CompactNaNFloat32(a []float32) []float32 {
	o := 0
	for _, v := range a {
		if v == v {
			a[o] = v
			o++
		}
	}
	return a[:o]
}
