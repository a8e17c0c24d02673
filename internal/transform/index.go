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
	"regexp"
	"strconv"
	"strings"

	goeval "github.com/edisonguo/govaluate"
	"github.com/zmadru/SatChange/internal/raster"
)

// Band math over the series of each pixel, producing a single value.
// Variables b1..bN refer to the 1-based bands of the input. Division by zero
// yields NaN, which is kept; infinities are mapped to NaN. Expressions are
// evaluated in single precision.
//
// A Sensor selects the NDVI expression with that sensor's red and near
// infrared bands, and takes precedence over Expression.
type Index struct {
	Base
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Sensor     string `json:"sensor"`

	expr string
	vars []string
}

var _ Transform = (*Index)(nil)

func init() { SetFactory(func() Transform { return NewIndexDefault() }) }

func NewIndexDefault() *Index { return NewIndex("", "") }

func NewIndex(name, expression string) *Index {
	return &Index{Base: Base{Type: "index"}, Name: name, Expression: expression}
}

func (t *Index) UnmarshalJSON(data []byte) error {
	type defaults Index
	def := defaults(*NewIndexDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = Index(def)
	return nil
}

// Red and near infrared band numbers per sensor
type redNIR struct{ red, nir int }

var sensorBands = map[string]redNIR{
	"s2-10m": {3, 4},
	"s2-20m": {3, 7},
	"s2-60m": {4, 8},
	"modis":  {1, 2},
	"avhrr":  {1, 2},
}

// Names of the sensors with NDVI presets
func Sensors() []string {
	return []string{"s2-10m", "s2-20m", "s2-60m", "modis", "avhrr"}
}

var bandVariable = regexp.MustCompile(`^b([1-9][0-9]*)$`)

func (t *Index) Init(depth int) error {
	t.expr = t.Expression
	if t.Sensor != "" {
		b, ok := sensorBands[strings.ToLower(t.Sensor)]
		if !ok {
			return fmt.Errorf("index: unknown sensor '%s', want one of %v", t.Sensor, Sensors())
		}
		t.expr = fmt.Sprintf("(b%d - b%d) / (b%d + b%d)", b.nir, b.red, b.nir, b.red)
		if t.Name == "" {
			t.Name = "ndvi"
		}
	}
	if strings.TrimSpace(t.expr) == "" {
		return fmt.Errorf("index: expression or sensor required")
	}
	expr, err := goeval.NewEvaluableExpression(t.expr)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	t.vars = t.vars[:0]
	seen := map[string]bool{}
	for _, token := range expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		name, ok := token.Value.(string)
		if !ok {
			return fmt.Errorf("index: variable token '%v' failed to cast string", token.Value)
		}
		m := bandVariable.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("index: variable %s is not supported, use b1..b%d", name, depth)
		}
		if b, _ := strconv.Atoi(m[1]); b > depth {
			return fmt.Errorf("index: band %s beyond series length %d", name, depth)
		}
		if !seen[name] {
			seen[name] = true
			t.vars = append(t.vars, name)
		}
	}
	if t.Name == "" {
		t.Name = "custom"
	}
	return nil
}

func (t *Index) OutDepth(depth int) int   { return 1 }
func (t *Index) OutputType() raster.DType { return raster.Float32 }
func (t *Index) HasDiagnostics() bool     { return false }
func (t *Index) Naming() Naming           { return Naming{Main: "_index_" + t.Name} }

func (t *Index) NewKernel(depth int) (Kernel, error) {
	// each kernel evaluates its own parse of the expression
	expr, err := goeval.NewEvaluableExpression(t.expr)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	bands := make([]int, len(t.vars))
	for i, name := range t.vars {
		bands[i], _ = strconv.Atoi(name[1:])
	}
	params := make(map[string]interface{}, len(t.vars))
	return func(in, out []float64) (Diagnostics, error) {
		for i, name := range t.vars {
			params[name] = float32(in[bands[i]-1])
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			return Diagnostics{}, fmt.Errorf("index: %w", err)
		}
		var v float64
		switch r := result.(type) {
		case float32:
			v = float64(r)
		case float64:
			v = r
		default:
			return Diagnostics{}, fmt.Errorf("index: expression '%s' yields %T, want a number", t.expr, result)
		}
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		out[0] = v
		return Diagnostics{}, nil
	}, nil
}
