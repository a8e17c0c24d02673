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

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 500; i++ {
		// random permutation of 1..n
		arr := make([]float32, i)
		for j := 0; j < len(arr); j++ {
			arr[j] = float32(j + 1)
		}
		for j := 0; j < len(arr); j++ {
			k := rng.Uint32n(uint32(len(arr)))
			arr[j], arr[k] = arr[k], arr[j]
		}

		var expect float32
		if (i & 1) != 0 {
			expect = float32((i + 1) / 2)
		} else {
			expect = 0.5 * (float32(i/2) + float32(i/2+1))
		}

		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Errorf("median(1..%d)=%f; want %f", i, res, expect)
		}
	}
}

func TestSelectWithDuplicates(t *testing.T) {
	arr := []float32{3, 1, 3, 3, 2, 3, 1}
	for k, want := range []float32{1, 1, 2, 3, 3, 3, 3} {
		cp := append([]float32(nil), arr...)
		if got := QSelectFloat32(cp, k+1); got != want {
			t.Errorf("select(%d)=%f; want %f", k+1, got, want)
		}
	}
}

func TestCompactNaN(t *testing.T) {
	nan := float32(math.NaN())
	arr := CompactNaNFloat32([]float32{nan, 1, nan, 2, 3, nan})
	if len(arr) != 3 || arr[0] != 1 || arr[1] != 2 || arr[2] != 3 {
		t.Errorf("compact=%v; want [1 2 3]", arr)
	}
}
