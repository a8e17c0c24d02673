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
	"math"

	"github.com/zmadru/SatChange/internal/raster"
	"gonum.org/v1/gonum/mat"
)

// Whittaker smoother. Solves (I + lambda D'D) z = y with D the second order
// difference operator. The system matrix is symmetric positive definite with
// bandwidth two and is factorized once per kernel by banded Cholesky.
type Whittaker struct {
	Base
	Lambda float64 `json:"lambda"` // negative selects int(0.1*depth)

	lambda float64
}

var _ Transform = (*Whittaker)(nil)

func init() { SetFactory(func() Transform { return NewWhittakerDefault() }) }

func NewWhittakerDefault() *Whittaker { return NewWhittaker(-1) }

func NewWhittaker(lambda float64) *Whittaker {
	return &Whittaker{Base: Base{Type: "whittaker"}, Lambda: lambda}
}

func (t *Whittaker) UnmarshalJSON(data []byte) error {
	type defaults Whittaker
	def := defaults(*NewWhittakerDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = Whittaker(def)
	return nil
}

func (t *Whittaker) Init(depth int) error {
	t.lambda = t.Lambda
	if t.lambda < 0 {
		t.lambda = math.Trunc(0.1 * float64(depth))
	}
	if math.IsNaN(t.lambda) || math.IsInf(t.lambda, 0) {
		return fmt.Errorf("whittaker: invalid lambda %g", t.Lambda)
	}
	return nil
}

// Effective smoothing parameter after Init
func (t *Whittaker) EffectiveLambda() float64 { return t.lambda }

func (t *Whittaker) OutDepth(depth int) int   { return depth }
func (t *Whittaker) OutputType() raster.DType { return raster.Float32 }
func (t *Whittaker) HasDiagnostics() bool     { return true }
func (t *Whittaker) Naming() Naming {
	return Naming{Main: "_whitf_", RMSE: "_whitrmse_", Pearson: "_whitpearson_"}
}

// Builds I + lambda D'D for second differences on n points
func whittakerSystem(n int, lambda float64) *mat.SymBandDense {
	a := mat.NewSymBandDense(n, 2, nil)
	for i := 0; i < n; i++ {
		a.SetSymBand(i, i, 1)
	}
	d := [3]float64{1, -2, 1}
	for k := 0; k+2 < n; k++ {
		for p := 0; p < 3; p++ {
			for q := p; q < 3; q++ {
				i, j := k+p, k+q
				a.SetSymBand(i, j, a.At(i, j)+lambda*d[p]*d[q])
			}
		}
	}
	return a
}

func (t *Whittaker) NewKernel(depth int) (Kernel, error) {
	if depth < 3 || t.lambda == 0 {
		return func(in, out []float64) (Diagnostics, error) {
			copy(out, in)
			return Compare(in, out), nil
		}, nil
	}
	var chol mat.BandCholesky
	if ok := chol.Factorize(whittakerSystem(depth, t.lambda)); !ok {
		return nil, fmt.Errorf("whittaker: system with lambda %g is not positive definite", t.lambda)
	}
	z := mat.NewVecDense(depth, nil)
	return func(in, out []float64) (Diagnostics, error) {
		if err := chol.SolveVecTo(z, mat.NewVecDense(depth, in)); err != nil {
			return Diagnostics{}, fmt.Errorf("whittaker: %w", err)
		}
		for i := range out {
			out[i] = z.AtVec(i)
		}
		return Compare(in, out), nil
	}, nil
}
