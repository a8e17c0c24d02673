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

package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/valyala/fastrand"
	"github.com/zmadru/SatChange/internal/progress"
	"github.com/zmadru/SatChange/internal/raster"
	"github.com/zmadru/SatChange/internal/transform"
)

// Copies series through unchanged, failing or panicking on series starting with marker
type markerTransform struct {
	transform.Base
	marker float64
	panics bool
}

func newMarkerTransform(marker float64, panics bool) *markerTransform {
	return &markerTransform{Base: transform.Base{Type: "marker"}, marker: marker, panics: panics}
}

func (m *markerTransform) Init(depth int) error     { return nil }
func (m *markerTransform) OutDepth(depth int) int   { return depth }
func (m *markerTransform) OutputType() raster.DType { return raster.Float32 }
func (m *markerTransform) HasDiagnostics() bool     { return true }
func (m *markerTransform) Naming() transform.Naming {
	return transform.Naming{Main: "_mark_", RMSE: "_markrmse_", Pearson: "_markpearson_"}
}

func (m *markerTransform) NewKernel(depth int) (transform.Kernel, error) {
	return func(in, out []float64) (transform.Diagnostics, error) {
		if in[0] == m.marker {
			if m.panics {
				panic("marker reached")
			}
			return transform.Diagnostics{}, errors.New("marker reached")
		}
		copy(out, in)
		return transform.Compare(in, out), nil
	}, nil
}

func testContext(workers int) *Context {
	return &Context{Log: io.Discard, MaxWorkers: workers, Progress: progress.NewTracker()}
}

// Writes a random Int16-valued cube as FITS into dir and returns its path
func writeTestCube(t *testing.T, dir string, h, w, d int) (string, *raster.Cube) {
	t.Helper()
	var rng fastrand.RNG
	rng.Seed(uint32(h*1000 + w*10 + d))
	c, err := raster.NewCube(h, w, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range c.Data {
		c.Data[i] = float32(rng.Uint32n(2000)) - 500
	}
	c.DType, c.NoData, c.HasNoData = raster.Int16, raster.DefaultNoData, true
	fileName := filepath.Join(dir, "cube.fits")
	if err := raster.Save(fileName, nil, c); err != nil {
		t.Fatal(err)
	}
	return fileName, c
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	es, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := []string{}
	for _, e := range es {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunACFLagZero(t *testing.T) {
	dir := t.TempDir()
	fileName, _ := writeTestCube(t, dir, 2, 2, 8)
	c := testContext(2)

	outs, err := Run(context.Background(), c, fileName, transform.NewACF(3))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "cube_ACF1_.fits"); outs.Main != want {
		t.Errorf("main=%s; want %s", outs.Main, want)
	}
	out, err := raster.Load(outs.Main, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if out.Depth != 4 || out.DType != raster.Int16 {
		t.Fatalf("output %s %v; want depth 4 int16", out.DimensionsToString(), out.DType)
	}
	for r := 0; r < 2; r++ {
		for col := 0; col < 2; col++ {
			if got := out.Series(r, col)[0]; got != 10000 {
				t.Errorf("[%d][%d][0]=%f; want %f", r, col, got, 10000.0)
			}
		}
	}
	s := c.Progress.Snapshot()
	if s.Phase != progress.Done || s.Progress != 100 || s.OutputPath != outs.Main {
		t.Errorf("snapshot=%+v; want done at 100 with %s", s, outs.Main)
	}
}

func TestRunMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	fileName, in := writeTestCube(t, dir, 9, 5, 12)
	tr := transform.NewSavitzkyGolay(5, 2)

	outs, err := Run(context.Background(), testContext(4), fileName, tr)
	if err != nil {
		t.Fatal(err)
	}
	got, err := raster.Load(outs.Main, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	k, err := tr.NewKernel(in.Depth)
	if err != nil {
		t.Fatal(err)
	}
	series, smoothed := make([]float64, in.Depth), make([]float64, in.Depth)
	for r := 0; r < in.Height; r++ {
		for col := 0; col < in.Width; col++ {
			for i, v := range in.Series(r, col) {
				series[i] = float64(v)
			}
			if _, err := k(series, smoothed); err != nil {
				t.Fatal(err)
			}
			for i, v := range got.Series(r, col) {
				if v != float32(smoothed[i]) {
					t.Fatalf("[%d][%d][%d]=%f; want %f", r, col, i, v, float32(smoothed[i]))
				}
			}
		}
	}

	for _, name := range []string{outs.RMSE, outs.Pearson} {
		diag, err := raster.Load(name, io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		if diag.Depth != 1 || diag.Height != in.Height || diag.Width != in.Width || diag.DType != raster.Float32 {
			t.Errorf("%s: %s %v; want %dx%dx1 float32", name, diag.DimensionsToString(), diag.DType, in.Height, in.Width)
		}
	}
	if !strings.HasSuffix(outs.RMSE, "cube_SGrmse_.fits") || !strings.HasSuffix(outs.Pearson, "cube_SGpearson_.fits") {
		t.Errorf("diagnostics=%s,%s; want SG suffixes", outs.RMSE, outs.Pearson)
	}
}

func TestAssemblerShuffledCompletion(t *testing.T) {
	const h, w, d = 23, 4, 6
	var rng fastrand.RNG
	tasks := make([]RowTask, h)
	for r := range tasks {
		data := make([]float32, w*d)
		for i := range data {
			data[i] = float32(rng.Uint32n(1000))
		}
		tasks[r] = RowTask{Row: r, Width: w, Depth: d, Data: data}
	}
	tr := newMarkerTransform(-1, false)
	results := make([]Result, h)
	for r := range tasks {
		res, err := processRow(&tasks[r], tr)
		if err != nil {
			t.Fatal(err)
		}
		results[r] = res
	}

	for trial := 0; trial < 5; trial++ {
		perm := make([]int, h)
		for i := range perm {
			perm[i] = i
		}
		for i := len(perm) - 1; i > 0; i-- {
			j := int(rng.Uint32n(uint32(i + 1)))
			perm[i], perm[j] = perm[j], perm[i]
		}
		a := NewAssembler(h, w, d, true)
		for _, r := range perm {
			if err := a.Add(results[r]); err != nil {
				t.Fatal(err)
			}
		}
		if err := a.Finish(); err != nil {
			t.Fatal(err)
		}
		for r := range tasks {
			if !reflect.DeepEqual(a.Main[r*w*d:(r+1)*w*d], tasks[r].Data) {
				t.Fatalf("trial %d: row %d out of place", trial, r)
			}
		}
	}
}

func TestAssemblerRejects(t *testing.T) {
	a := NewAssembler(3, 2, 1, false)
	a.Progress = progress.NewTracker()
	row := func(r int) Result { return Result{Row: r, Data: []float32{1, 2}} }

	if err := a.Add(row(1)); err != nil {
		t.Fatal(err)
	}
	if got := a.Progress.Snapshot().Progress; got != 33 {
		t.Errorf("progress=%d; want %d", got, 33)
	}
	if err := a.Add(row(1)); err == nil {
		t.Error("want error for duplicate row")
	}
	if err := a.Add(row(3)); err == nil {
		t.Error("want error for row out of range")
	}
	if err := a.Add(Result{Row: 0, Data: []float32{1}}); err == nil {
		t.Error("want error for short row")
	}
	err := a.Finish()
	if err == nil || !strings.Contains(err.Error(), "first missing row 0") {
		t.Errorf("finish=%v; want missing row 0", err)
	}
}

func TestDispatchEmitsEveryRow(t *testing.T) {
	tasks := make([]RowTask, 40)
	for r := range tasks {
		tasks[r] = RowTask{Row: r, Width: 3, Depth: 5, Data: make([]float32, 15)}
	}
	seen := map[int]bool{}
	err := Dispatch(context.Background(), tasks, newMarkerTransform(-1, false), 3, func(res Result) error {
		seen[res.Row] = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != len(tasks) {
		t.Errorf("emitted %d rows; want %d", len(seen), len(tasks))
	}
	for r := range tasks {
		if tasks[r].Data != nil {
			t.Errorf("task %d data retained after processing", r)
		}
	}
}

func TestDispatchFirstError(t *testing.T) {
	for _, panics := range []bool{false, true} {
		tasks := make([]RowTask, 10)
		for r := range tasks {
			tasks[r] = RowTask{Row: r, Width: 2, Depth: 3, Data: []float32{float32(r), 0, 0, 1, 1, 1}}
		}
		err := Dispatch(context.Background(), tasks, newMarkerTransform(4, panics), 2, func(Result) error { return nil })
		var tErr *TransformError
		if !errors.As(err, &tErr) {
			t.Fatalf("panics=%v: err=%v; want *TransformError", panics, err)
		}
		if tErr.Row != 4 || tErr.Type != "marker" {
			t.Errorf("panics=%v: row=%d type=%s; want row 4 of marker", panics, tErr.Row, tErr.Type)
		}
	}
}

func TestDispatchEmitError(t *testing.T) {
	tasks := make([]RowTask, 6)
	for r := range tasks {
		tasks[r] = RowTask{Row: r, Width: 1, Depth: 2, Data: []float32{1, 2}}
	}
	errStop := errors.New("stop")
	err := Dispatch(context.Background(), tasks, newMarkerTransform(-1, false), 1, func(Result) error { return errStop })
	if !errors.Is(err, errStop) {
		t.Errorf("err=%v; want %v", err, errStop)
	}
}

func TestDispatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks := []RowTask{{Row: 0, Width: 1, Depth: 2, Data: []float32{1, 2}}}
	emitted := 0
	err := Dispatch(ctx, tasks, newMarkerTransform(-1, false), 2, func(Result) error { emitted++; return nil })
	if !errors.Is(err, context.Canceled) || emitted != 0 {
		t.Errorf("err=%v emitted=%d; want canceled with nothing emitted", err, emitted)
	}
}

// Shifts every value just below its input, to land between two float32 values
type nudgeTransform struct {
	transform.Base
	dtype raster.DType
}

func (n *nudgeTransform) Init(depth int) error     { return nil }
func (n *nudgeTransform) OutDepth(depth int) int   { return depth }
func (n *nudgeTransform) OutputType() raster.DType { return n.dtype }
func (n *nudgeTransform) HasDiagnostics() bool     { return false }
func (n *nudgeTransform) Naming() transform.Naming { return transform.Naming{Main: "_nudge_"} }

func (n *nudgeTransform) NewKernel(depth int) (transform.Kernel, error) {
	return func(in, out []float64) (transform.Diagnostics, error) {
		for i, v := range in {
			out[i] = v - 1e-13
		}
		return transform.Diagnostics{}, nil
	}, nil
}

func TestProcessRowNarrowsIntegerOutputs(t *testing.T) {
	nan := float32(math.NaN())
	tcs := []struct {
		dtype raster.DType
		want  []float32
	}{
		{raster.Int16, []float32{999, -1000, raster.DefaultNoData, 32767}},
		{raster.Byte, []float32{255, 0, 0, 255}},
		{raster.Float32, []float32{1000, -1000, nan, 40000}},
	}
	for _, tc := range tcs {
		task := RowTask{Row: 0, Width: 2, Depth: 2, Data: []float32{1000, -1000, nan, 40000}}
		res, err := processRow(&task, &nudgeTransform{Base: transform.Base{Type: "nudge"}, dtype: tc.dtype})
		if err != nil {
			t.Fatalf("%v: %v", tc.dtype, err)
		}
		for i, want := range tc.want {
			got := res.Data[i]
			if got != want && !(got != got && want != want) {
				t.Errorf("%v: data[%d]=%f; want %f", tc.dtype, i, got, want)
			}
		}
	}
}

func TestRunKernelFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	fileName, c := writeTestCube(t, dir, 6, 3, 5)
	c.Series(4, 1)[0] = -777
	if err := raster.Save(fileName, nil, c); err != nil {
		t.Fatal(err)
	}
	ctx := testContext(2)

	_, err := Run(context.Background(), ctx, fileName, newMarkerTransform(-777, false))
	var tErr *TransformError
	if !errors.As(err, &tErr) || tErr.Row != 4 {
		t.Fatalf("err=%v; want transform error on row 4", err)
	}
	if s := ctx.Progress.Snapshot(); s.Phase != progress.Error || s.OutputPath != "" || s.Error == "" {
		t.Errorf("snapshot=%+v; want error phase without output", s)
	}
	if got := dirEntries(t, dir); !reflect.DeepEqual(got, []string{"cube.fits"}) {
		t.Errorf("files=%v; want only the input", got)
	}
}

func TestRunWriteFailureRemovesOutputs(t *testing.T) {
	dir := t.TempDir()
	fileName, _ := writeTestCube(t, dir, 3, 3, 4)
	ctx := testContext(1)
	ctx.Preview = ".bmp"

	if _, err := Run(context.Background(), ctx, fileName, newMarkerTransform(-1, false)); err == nil {
		t.Fatal("want error for unknown preview format")
	}
	if got := dirEntries(t, dir); !reflect.DeepEqual(got, []string{"cube.fits"}) {
		t.Errorf("files=%v; want only the input", got)
	}
	if s := ctx.Progress.Snapshot(); s.Phase != progress.Error {
		t.Errorf("phase=%v; want %v", s.Phase, progress.Error)
	}
}

func TestRunLoadFailure(t *testing.T) {
	ctx := testContext(1)
	var log strings.Builder
	ctx.Log = &log
	_, err := Run(context.Background(), ctx, filepath.Join(t.TempDir(), "absent.fits"), transform.NewACF(1))
	var ioErr *raster.IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "open" {
		t.Fatalf("err=%v; want open error", err)
	}
	if s := ctx.Progress.Snapshot(); s.Phase != progress.Error || s.Progress != 0 {
		t.Errorf("snapshot=%+v; want error at 0", s)
	}
	if strings.Contains(log.String(), err.Error()) {
		t.Errorf("log=%q; want the error returned, not printed", log.String())
	}
}

func TestRunInvalidParameters(t *testing.T) {
	dir := t.TempDir()
	fileName, _ := writeTestCube(t, dir, 2, 2, 8)
	if _, err := Run(context.Background(), testContext(1), fileName, transform.NewACF(8)); err == nil {
		t.Error("want error for nlags >= depth")
	}
	if got := dirEntries(t, dir); len(got) != 1 {
		t.Errorf("files=%v; want only the input", got)
	}
}

func TestRunPeriodogramSideChannel(t *testing.T) {
	dir := t.TempDir()
	fileName, _ := writeTestCube(t, dir, 2, 3, 10)
	ctx := testContext(2)
	ctx.Preview = ".jpg"

	outs, err := Run(context.Background(), ctx, fileName, transform.NewPeriodogram())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"cube.fits", "cube_Periodogram.fits", "cube_Periodogram.jpg", "cube_Periodogram_freqs.txt"}
	if got := dirEntries(t, dir); !reflect.DeepEqual(got, want) {
		t.Errorf("files=%v; want %v", got, want)
	}
	data, err := os.ReadFile(outs.Side)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 6 || lines[0] != "inf" || lines[1] != "10" || lines[5] != "2" {
		t.Errorf("side channel=%q; want 6 periods from inf to 2", lines)
	}
}

func TestOutputNames(t *testing.T) {
	tcs := []struct {
		input string
		tr    transform.Transform
		want  Outputs
	}{
		{"data/ndvi.tif", transform.NewACF(3), Outputs{Main: "data/ndvi_ACF1_.tif"}},
		{"ndvi.fits.gz", transform.NewInterpolator("akima", 0), Outputs{Main: "ndvi_filt_akima_.fits.gz"}},
		{"s.tif", transform.NewWhittaker(-1), Outputs{Main: "s_whitf_.tif", RMSE: "s_whitrmse_.tif", Pearson: "s_whitpearson_.tif"}},
		{"p.tif", transform.NewPeriodogram(), Outputs{Main: "p_Periodogram.tif", Side: "p_Periodogram_freqs.txt"}},
	}
	for _, tc := range tcs {
		if got := OutputNames(tc.input, tc.tr, 10, ""); got != tc.want {
			t.Errorf("%s %s: names=%+v; want %+v", tc.input, tc.tr.GetType(), got, tc.want)
		}
	}
}

func TestCheckMemory(t *testing.T) {
	c := &raster.Cube{Height: 1024, Width: 1024, Depth: 64}
	if err := checkMemory(0, c, 64, true); err != nil {
		t.Errorf("disabled check: %v", err)
	}
	if err := checkMemory(100000, c, 64, true); err != nil {
		t.Errorf("ample memory: %v", err)
	}
	if err := checkMemory(512, c, 64, true); err == nil {
		t.Error("want error for a run exceeding the budget")
	}
}

func TestDefaultWorkers(t *testing.T) {
	if n := DefaultWorkers(); n < 1 {
		t.Errorf("workers=%d; want at least 1", n)
	}
}
