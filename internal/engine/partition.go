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
	"runtime/debug"

	"github.com/zmadru/SatChange/internal/raster"
)

// One row of the input cube, width series of depth values each
type RowTask struct {
	Row   int
	Width int
	Depth int
	Data  []float32 // owned copy of the row, dropped once processed
}

// Splits the cube into one task per row, copying each row, then releases
// the cube data so that only the rows in flight stay referenced
func Partition(c *raster.Cube) []RowTask {
	tasks := make([]RowTask, c.Height)
	for r := range tasks {
		data := make([]float32, c.Width*c.Depth)
		copy(data, c.Row(r))
		tasks[r] = RowTask{Row: r, Width: c.Width, Depth: c.Depth, Data: data}
	}
	c.Release()
	debug.FreeOSMemory()
	return tasks
}
