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

// Package engine runs a pixel-wise transform over a raster cube. It loads the
// cube, splits it into row tasks, transforms the rows on a bounded pool of
// goroutines, reassembles them in row order and writes the outputs.
package engine

import (
	"io"
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"github.com/zmadru/SatChange/internal/metrics"
	"github.com/zmadru/SatChange/internal/progress"
)

// An execution context for transform runs
type Context struct {
	Log        io.Writer
	MemoryMB   int               // memory.TotalMemory()/1024/1024
	MaxWorkers int               `json:"maxWorkers"`
	Preview    string            // suffix of an optional preview image, ".jpg" or ".tif"
	Progress   *progress.Tracker // never nil
	Metrics    *metrics.Recorder // optional
}

func NewContext(log io.Writer) *Context {
	return &Context{
		Log:        log,
		MemoryMB:   int(memory.TotalMemory() / 1024 / 1024),
		MaxWorkers: DefaultWorkers(),
		Progress:   progress.NewTracker(),
	}
}

// Half the logical cores, at least one
func DefaultWorkers() int {
	cores := cpuid.CPU.LogicalCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	if cores/2 < 1 {
		return 1
	}
	return cores / 2
}
