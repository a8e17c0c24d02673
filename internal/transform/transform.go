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

// Package transform holds the per-pixel time series operators.
//
// A Transform is configured once per run, validated against the series
// length with Init, and then hands out one Kernel per row task. Kernels
// own their scratch buffers and are never shared between goroutines.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/zmadru/SatChange/internal/raster"
	"gonum.org/v1/gonum/stat"
)

// Per-pixel fidelity of a smoothed series against its raw input
type Diagnostics struct {
	RMSE    float64
	Pearson float64
}

// Transforms one series. len(in) is the input depth, len(out) the output depth
type Kernel func(in, out []float64) (Diagnostics, error)

// File name suffixes inserted between the input stem and its extension
type Naming struct {
	Main    string
	RMSE    string // empty without diagnostics
	Pearson string
}

// A pixel-wise time series transform
type Transform interface {
	GetType() string
	Init(depth int) error                // validates parameters against the input depth
	OutDepth(depth int) int              // length of each output series
	OutputType() raster.DType            // encoding of the main output
	HasDiagnostics() bool                // true if kernels report RMSE and Pearson
	Naming() Naming                      // output file suffixes
	NewKernel(depth int) (Kernel, error) // one per row task
}

// Implemented by transforms emitting a per-run text file next to the main output
type SideChannel interface {
	SideChannel(depth int) (suffix string, lines []string)
}

// Base type for transforms, carrying type information for JSON
type Base struct {
	Type string `json:"type"`
}

func (b *Base) GetType() string { return b.Type }

// Factory method for transforms, returning an instance with default parameters
type Factory func() Transform

var (
	factoriesLock sync.RWMutex
	factories     = map[string]Factory{}
)

// Registers a factory under the type string of the transform it creates
func SetFactory(f Factory) {
	t := f().GetType()
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	if factories[t] != nil {
		panic(fmt.Sprintf("error: re-registering transform key %s\n", t))
	}
	factories[t] = f
}

// Returns the factory for a type string, or nil
func GetFactory(t string) Factory {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()
	return factories[t]
}

// Sorted list of registered type strings
func Types() []string {
	factoriesLock.RLock()
	defer factoriesLock.RUnlock()
	ts := make([]string, 0, len(factories))
	for t := range factories {
		ts = append(ts, t)
	}
	sort.Strings(ts)
	return ts
}

// Creates a transform with default parameters
func New(t string) (Transform, error) {
	f := GetFactory(t)
	if f == nil {
		return nil, fmt.Errorf("unknown transform type '%s'", t)
	}
	return f(), nil
}

// Decodes a transform from JSON, dispatching on its "type" field.
// Parameters missing from the JSON keep their defaults
func Unmarshal(data []byte) (Transform, error) {
	var b Base
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if b.Type == "" {
		return nil, errors.New("transform without type")
	}
	t, err := New(b.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Type, err)
	}
	return t, nil
}

// Root mean square error between two series of equal length
func RMSE(x, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Pearson correlation between two series. NaN if either is constant
func Pearson(x, y []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// Diagnostics of out against in over the first len(in) values
func Compare(in, out []float64) Diagnostics {
	out = out[:len(in)]
	return Diagnostics{RMSE: RMSE(in, out), Pearson: Pearson(in, out)}
}
