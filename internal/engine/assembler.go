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
	"fmt"

	"github.com/zmadru/SatChange/internal/progress"
)

// Places row results at their row index, whatever order they arrive in
type Assembler struct {
	Height   int
	Width    int
	OutDepth int
	Main     []float32 // (row, col, band) layout with OutDepth bands
	RMSE     []float32 // (row, col) plane, nil without diagnostics
	Pearson  []float32

	Progress *progress.Tracker // optional, advanced on every row added

	seen []bool
	done int
}

func NewAssembler(height, width, outDepth int, diagnostics bool) *Assembler {
	a := &Assembler{
		Height:   height,
		Width:    width,
		OutDepth: outDepth,
		Main:     make([]float32, height*width*outDepth),
		seen:     make([]bool, height),
	}
	if diagnostics {
		a.RMSE = make([]float32, height*width)
		a.Pearson = make([]float32, height*width)
	}
	return a
}

// Stores one row. Rows outside the cube, rows delivered twice and rows of
// the wrong size are rejected
func (a *Assembler) Add(res Result) error {
	if res.Row < 0 || res.Row >= a.Height {
		return fmt.Errorf("result for row %d outside 0..%d", res.Row, a.Height-1)
	}
	if a.seen[res.Row] {
		return fmt.Errorf("duplicate result for row %d", res.Row)
	}
	rowLen := a.Width * a.OutDepth
	if len(res.Data) != rowLen {
		return fmt.Errorf("row %d has %d values, want %d", res.Row, len(res.Data), rowLen)
	}
	if a.RMSE != nil && (len(res.RMSE) != a.Width || len(res.Pearson) != a.Width) {
		return fmt.Errorf("row %d lacks diagnostics for %d columns", res.Row, a.Width)
	}

	copy(a.Main[res.Row*rowLen:(res.Row+1)*rowLen], res.Data)
	if a.RMSE != nil {
		copy(a.RMSE[res.Row*a.Width:(res.Row+1)*a.Width], res.RMSE)
		copy(a.Pearson[res.Row*a.Width:(res.Row+1)*a.Width], res.Pearson)
	}
	a.seen[res.Row] = true
	a.done++
	if a.Progress != nil {
		a.Progress.Advance(a.done, a.Height)
	}
	return nil
}

// Number of rows stored so far
func (a *Assembler) Done() int { return a.done }

// Checks that every row has been stored
func (a *Assembler) Finish() error {
	if a.done == a.Height {
		return nil
	}
	for r, ok := range a.seen {
		if !ok {
			return fmt.Errorf("missing results for %d of %d rows, first missing row %d", a.Height-a.done, a.Height, r)
		}
	}
	return nil
}
