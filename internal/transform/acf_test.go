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
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestACFLagZero(t *testing.T) {
	rng := fastrand.RNG{}
	for depth := 2; depth < 60; depth++ {
		in := randomSeries(&rng, depth)
		in[0] = in[1] + 1 // not constant
		out, _ := apply(t, NewACF(depth-1), in)
		if out[0] != 10000 {
			t.Errorf("depth %d: acf[0]=%f; want 10000", depth, out[0])
		}
	}
}

func TestACFValues(t *testing.T) {
	out, _ := apply(t, NewACF(3), []float64{1, 2, 3, 4})
	assertClose(t, "ramp", out, []float64{10000, 2500, -3000, -4500}, 1e-6)

	out, _ = apply(t, NewACF(2), []float64{7, 7, 7, 7, 7})
	assertClose(t, "constant", out, []float64{10000, 0, 0}, 0)
}

// Lag 2 of this series scales to -999.9999999999999, which single precision
// would round to -1000 before truncation
func TestACFTruncatesBeforeNarrowing(t *testing.T) {
	out, _ := apply(t, NewACF(3), []float64{8, 27, 17, 15, 25})
	if out[2] != -999 {
		t.Errorf("acf[2]=%f; want -999", out[2])
	}
	for k, v := range out {
		if float64(float32(v)) != v || v != math.Trunc(v) {
			t.Errorf("acf[%d]=%f; want an integer exact in float32", k, v)
		}
	}
}

func TestACFInit(t *testing.T) {
	for _, nlags := range []int{-1, 8, 9} {
		if err := NewACF(nlags).Init(8); err == nil {
			t.Errorf("nlags=%d depth 8: want error", nlags)
		}
	}
	if d := NewACF(7).OutDepth(8); d != 8 {
		t.Errorf("outDepth=%d; want 8", d)
	}
}
