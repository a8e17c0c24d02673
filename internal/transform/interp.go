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
	"sort"

	"github.com/zmadru/SatChange/internal/raster"
	"gonum.org/v1/gonum/interp"
)

// Gap interpolator. Samples equal to Sentinel are missing and replaced by
// values interpolated from the remaining samples, extrapolating beyond the
// first and last known sample. Series with fewer than two known samples pass
// through unchanged.
type Interpolator struct {
	Base
	Method   string  `json:"method"`
	Sentinel float64 `json:"sentinel"`
}

var _ Transform = (*Interpolator)(nil)

func init() { SetFactory(func() Transform { return NewInterpolatorDefault() }) }

func NewInterpolatorDefault() *Interpolator { return NewInterpolator("linear", 0) }

func NewInterpolator(method string, sentinel float64) *Interpolator {
	return &Interpolator{Base: Base{Type: "interp"}, Method: method, Sentinel: sentinel}
}

func (t *Interpolator) UnmarshalJSON(data []byte) error {
	type defaults Interpolator
	def := defaults(*NewInterpolatorDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = Interpolator(def)
	return nil
}

// Supported interpolation methods
var InterpolationMethods = []string{"linear", "slinear", "nearest", "zero", "previous", "next", "quadratic", "cubic", "akima", "pchip"}

func (t *Interpolator) Init(depth int) error {
	for _, m := range InterpolationMethods {
		if m == t.Method {
			return nil
		}
	}
	return fmt.Errorf("interp: unknown method '%s', want one of %v", t.Method, InterpolationMethods)
}

func (t *Interpolator) OutDepth(depth int) int   { return depth }
func (t *Interpolator) OutputType() raster.DType { return raster.Int16 }
func (t *Interpolator) HasDiagnostics() bool     { return false }
func (t *Interpolator) Naming() Naming           { return Naming{Main: "_filt_" + t.Method + "_"} }

func (t *Interpolator) NewKernel(depth int) (Kernel, error) {
	xs, ys := make([]float64, 0, depth), make([]float64, 0, depth)
	return func(in, out []float64) (Diagnostics, error) {
		copy(out, in)
		xs, ys = xs[:0], ys[:0]
		for i, v := range in {
			if v != t.Sentinel {
				xs, ys = append(xs, float64(i)), append(ys, v)
			}
		}
		if len(xs) < 2 || len(xs) == depth {
			return Diagnostics{}, nil
		}
		p, err := newPredictor(t.Method, xs, ys)
		if err != nil {
			return Diagnostics{}, err
		}
		for i, v := range in {
			if v == t.Sentinel {
				out[i] = p.Predict(float64(i))
			}
		}
		return Diagnostics{}, nil
	}, nil
}

// Fits a predictor for the method to strictly increasing xs. Methods needing
// more points than given fall back to linear interpolation
func newPredictor(method string, xs, ys []float64) (interp.Predictor, error) {
	n := len(xs)
	var fp interp.FittablePredictor
	switch method {
	case "linear", "slinear":
		return &linearPredictor{xs: xs, ys: ys}, nil
	case "nearest":
		return &stepPredictor{xs: xs, ys: ys, pick: pickNearest}, nil
	case "zero", "previous":
		return &stepPredictor{xs: xs, ys: ys, pick: pickPrevious}, nil
	case "next":
		fp = &interp.PiecewiseConstant{}
	case "quadratic":
		if n < 3 {
			return &linearPredictor{xs: xs, ys: ys}, nil
		}
		return newQuadraticSpline(xs, ys), nil
	case "cubic":
		if n < 4 {
			return &linearPredictor{xs: xs, ys: ys}, nil
		}
		fp = &interp.NotAKnotCubic{}
	case "akima":
		if n < 3 {
			return &linearPredictor{xs: xs, ys: ys}, nil
		}
		fp = &interp.AkimaSpline{}
	case "pchip":
		if n < 3 {
			return &linearPredictor{xs: xs, ys: ys}, nil
		}
		fp = &interp.FritschButland{}
	default:
		return nil, fmt.Errorf("interp: unknown method '%s'", method)
	}
	if err := fp.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("interp: %s: %w", method, err)
	}
	if method == "next" {
		return fp, nil
	}
	return &splineExtrapolator{xs: xs, inner: fp}, nil
}

// Piecewise linear, extended by the lines through the first two and the last two points
type linearPredictor struct {
	xs, ys []float64
}

func (p *linearPredictor) Predict(x float64) float64 {
	n := len(p.xs)
	i := sort.SearchFloat64s(p.xs, x) // first index with xs[i] >= x
	if i < n && p.xs[i] == x {
		return p.ys[i]
	}
	switch {
	case i == 0:
		i = 1
	case i == n:
		i = n - 1
	}
	x0, x1, y0, y1 := p.xs[i-1], p.xs[i], p.ys[i-1], p.ys[i]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

// Step functions, holding the first or last value beyond the data range
type stepPredictor struct {
	xs, ys []float64
	pick   func(xs []float64, x float64, i int) int
}

func (p *stepPredictor) Predict(x float64) float64 {
	i := sort.SearchFloat64s(p.xs, x)
	if i < len(p.xs) && p.xs[i] == x {
		return p.ys[i]
	}
	return p.ys[p.pick(p.xs, x, i)]
}

// i is the insertion index of x. Ties go to the lower point
func pickNearest(xs []float64, x float64, i int) int {
	if i == 0 {
		return 0
	}
	if i == len(xs) || x-xs[i-1] <= xs[i]-x {
		return i - 1
	}
	return i
}

func pickPrevious(xs []float64, x float64, i int) int {
	if i == 0 {
		return 0
	}
	return i - 1
}

// Interpolating quadratic B-spline. Knots are the end points with multiplicity
// three and the midpoints between consecutive interior samples, so the
// collocation system is tridiagonal. Beyond the data range the end pieces
// are continued.
type quadraticSpline struct {
	knots  []float64
	coeffs []float64
}

func newQuadraticSpline(xs, ys []float64) *quadraticSpline {
	n := len(xs)
	knots := make([]float64, 0, n+3)
	knots = append(knots, xs[0], xs[0], xs[0])
	for i := 1; i < n-2; i++ {
		knots = append(knots, (xs[i]+xs[i+1])/2)
	}
	knots = append(knots, xs[n-1], xs[n-1], xs[n-1])
	s := &quadraticSpline{knots: knots, coeffs: make([]float64, n)}

	// sample i lies in knot span i+1, touching basis functions i-1, i and i+1
	sub, diag, super := make([]float64, n), make([]float64, n), make([]float64, n)
	diag[0], diag[n-1] = 1, 1
	for i := 1; i < n-1; i++ {
		sub[i], diag[i], super[i] = s.basis(i+1, xs[i])
	}

	// Thomas algorithm
	rhs := s.coeffs
	copy(rhs, ys)
	for i := 1; i < n; i++ {
		w := sub[i] / diag[i-1]
		diag[i] -= w * super[i-1]
		rhs[i] -= w * rhs[i-1]
	}
	rhs[n-1] /= diag[n-1]
	for i := n - 2; i >= 0; i-- {
		rhs[i] = (rhs[i] - super[i]*rhs[i+1]) / diag[i]
	}
	return s
}

// Values of the three quadratic basis functions that are non-zero on knot span l, at x
func (s *quadraticSpline) basis(l int, x float64) (b0, b1, b2 float64) {
	t := s.knots
	left1, right1 := x-t[l], t[l+1]-x
	left2, right2 := x-t[l-1], t[l+2]-x

	n0 := right1 / (right1 + left1)
	n1 := left1 / (right1 + left1)

	temp := n0 / (right1 + left2)
	b0 = right1 * temp
	saved := left2 * temp
	temp = n1 / (right2 + left1)
	b1 = saved + right2*temp
	b2 = left1 * temp
	return b0, b1, b2
}

func (s *quadraticSpline) Predict(x float64) float64 {
	n := len(s.coeffs)
	inner := s.knots[3:n]
	l := 2 + sort.Search(len(inner), func(i int) bool { return inner[i] > x })
	b0, b1, b2 := s.basis(l, x)
	return b0*s.coeffs[l-2] + b1*s.coeffs[l-1] + b2*s.coeffs[l]
}

// Evaluates the polynomial through the given points at x
func lagrange(xs, ys []float64, x float64) float64 {
	sum := 0.0
	for i := range xs {
		l := ys[i]
		for j := range xs {
			if i != j {
				l *= (x - xs[j]) / (xs[i] - xs[j])
			}
		}
		sum += l
	}
	return sum
}

// Extends a piecewise cubic beyond its data range with the cubic of its end segment,
// recovered from four samples inside that segment
type splineExtrapolator struct {
	xs    []float64
	inner interp.Predictor
}

func (p *splineExtrapolator) Predict(x float64) float64 {
	n := len(p.xs)
	var lo, hi float64
	switch {
	case x < p.xs[0]:
		lo, hi = p.xs[0], p.xs[1]
	case x > p.xs[n-1]:
		lo, hi = p.xs[n-2], p.xs[n-1]
	default:
		return p.inner.Predict(x)
	}
	var sx, sy [4]float64
	for k := range sx {
		sx[k] = lo + (hi-lo)*float64(k)/3
		sy[k] = p.inner.Predict(sx[k])
	}
	return lagrange(sx[:], sy[:], x)
}
