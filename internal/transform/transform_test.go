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
	"reflect"
	"testing"

	"github.com/valyala/fastrand"
	"github.com/zmadru/SatChange/internal/raster"
)

// Initializes t for the input length and applies one kernel to in
func apply(t *testing.T, tr Transform, in []float64) ([]float64, Diagnostics) {
	t.Helper()
	if err := tr.Init(len(in)); err != nil {
		t.Fatalf("%s: init: %v", tr.GetType(), err)
	}
	k, err := tr.NewKernel(len(in))
	if err != nil {
		t.Fatalf("%s: kernel: %v", tr.GetType(), err)
	}
	out := make([]float64, tr.OutDepth(len(in)))
	d, err := k(in, out)
	if err != nil {
		t.Fatalf("%s: apply: %v", tr.GetType(), err)
	}
	return out, d
}

func randomSeries(rng *fastrand.RNG, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(rng.Uint32n(10000)) - 2000
	}
	return s
}

func assertClose(t *testing.T, name string, got, want []float64, epsilon float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len=%d; want %d", name, len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > epsilon || math.IsNaN(got[i]) != math.IsNaN(want[i]) {
			t.Errorf("%s: [%d]=%f; want %f", name, i, got[i], want[i])
		}
	}
}

func TestRegistry(t *testing.T) {
	want := []string{"acf", "change", "fft", "index", "interp", "max", "periodogram", "sg", "viability", "whittaker"}
	if got := Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("types=%v; want %v", got, want)
	}
	if _, err := New("wavelet"); err == nil {
		t.Error("want error for unknown type")
	}
}

func TestUnmarshalDefaults(t *testing.T) {
	tr, err := Unmarshal([]byte(`{"type":"sg","window":9}`))
	if err != nil {
		t.Fatal(err)
	}
	sg, ok := tr.(*SavitzkyGolay)
	if !ok {
		t.Fatalf("type %T; want *SavitzkyGolay", tr)
	}
	if sg.Window != 9 || sg.PolyOrder != 2 {
		t.Errorf("window=%d poly=%d; want 9, 2", sg.Window, sg.PolyOrder)
	}

	tr, err = Unmarshal([]byte(`{"type":"change","heuristic":"halves"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cd := tr.(*ChangeDetector); cd.Ratio != 0.3 || cd.Sensitivity != 0.2 || cd.Heuristic != "halves" {
		t.Errorf("change=%+v; want halves with default ratio and sensitivity", cd)
	}

	for _, bad := range []string{`{"window":9}`, `{"type":"nope"}`, `{"type":"acf","nlags":"x"}`, `[`} {
		if _, err := Unmarshal([]byte(bad)); err == nil {
			t.Errorf("%s: want error", bad)
		}
	}
}

type namingTestCase struct {
	tr    Transform
	dtype raster.DType
	want  Naming
}

func TestNaming(t *testing.T) {
	tcs := []namingTestCase{
		{NewACFDefault(), raster.Int16, Naming{Main: "_ACF1_"}},
		{NewPeriodogram(), raster.Int16, Naming{Main: "_Periodogram"}},
		{NewSavitzkyGolayDefault(), raster.Float32, Naming{"_SG_", "_SGrmse_", "_SGpearson_"}},
		{NewFFTFilterDefault(), raster.Float32, Naming{"_FFT_", "_fftrmse_", "_fftpearson_"}},
		{NewWhittakerDefault(), raster.Float32, Naming{"_whitf_", "_whitrmse_", "_whitpearson_"}},
		{NewMaxFilter(), raster.Float32, Naming{"_max", "_maxrmse_", "_maxpearson_"}},
		{NewInterpolator("akima", 0), raster.Int16, Naming{Main: "_filt_akima_"}},
		{NewViabilityDefault(), raster.Float32, Naming{Main: "_mask"}},
		{NewChangeDetectorDefault(), raster.Byte, Naming{Main: "_mask"}},
		{NewIndex("evi", "b2-b1"), raster.Float32, Naming{Main: "_index_evi"}},
	}
	for _, tc := range tcs {
		if got := tc.tr.Naming(); got != tc.want {
			t.Errorf("%s: naming=%+v; want %+v", tc.tr.GetType(), got, tc.want)
		}
		if got := tc.tr.OutputType(); got != tc.dtype {
			t.Errorf("%s: dtype=%v; want %v", tc.tr.GetType(), got, tc.dtype)
		}
		if got := tc.tr.HasDiagnostics(); got != (tc.want.RMSE != "") {
			t.Errorf("%s: diagnostics=%v; want %v", tc.tr.GetType(), got, !got)
		}
	}
}

func TestRMSE(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 50; i++ {
		x, y := randomSeries(&rng, i), randomSeries(&rng, i)
		if r := RMSE(x, x); r != 0 {
			t.Errorf("rmse(x,x)=%f; want 0", r)
		}
		if r := RMSE(x, y); !(r >= 0) {
			t.Errorf("rmse(x,y)=%f; want >= 0", r)
		}
	}
	if r := RMSE([]float64{1, 2, 3}, []float64{2, 2, 1}); math.Abs(r-math.Sqrt(5.0/3)) > 1e-12 {
		t.Errorf("rmse=%f; want %f", r, math.Sqrt(5.0/3))
	}
}

func TestPearson(t *testing.T) {
	if p := Pearson([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}); math.Abs(p-1) > 1e-12 {
		t.Errorf("pearson=%f; want 1", p)
	}
	if p := Pearson([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}); math.Abs(p+1) > 1e-12 {
		t.Errorf("pearson=%f; want -1", p)
	}
	if p := Pearson([]float64{5, 5, 5}, []float64{1, 2, 3}); !math.IsNaN(p) {
		t.Errorf("pearson of constant=%f; want NaN", p)
	}
}

// Shape preservation for the smoothing and gap filling transforms
func TestShapePreservation(t *testing.T) {
	rng := fastrand.RNG{}
	for _, depth := range []int{7, 8, 23, 46} {
		in := randomSeries(&rng, depth)
		for _, tr := range []Transform{NewSavitzkyGolayDefault(), NewFFTFilterDefault(), NewWhittakerDefault(), NewMaxFilter(), NewInterpolatorDefault()} {
			out, _ := apply(t, tr, in)
			if len(out) != depth || tr.OutDepth(depth) != depth {
				t.Errorf("%s depth %d: len=%d; want %d", tr.GetType(), depth, len(out), depth)
			}
		}
	}
}
