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
	"fmt"
	"time"

	"github.com/zmadru/SatChange/internal/metrics"
	"github.com/zmadru/SatChange/internal/progress"
	"github.com/zmadru/SatChange/internal/raster"
	"github.com/zmadru/SatChange/internal/transform"
)

// Loads the input, applies the transform to every pixel series and writes the outputs.
// Progress is reported on c.Progress; on failure the tracker ends in the error
// phase and no output files remain
func Run(ctx context.Context, c *Context, inputPath string, t transform.Transform) (outs *Outputs, err error) {
	start := time.Now()
	tracker := c.Progress
	tracker.Reset()
	c.Metrics.SetProgress(0)
	defer func() {
		outcome := metrics.OutcomeDone
		if err != nil {
			tracker.Fail(err)
			outcome = metrics.OutcomeError
		}
		c.Metrics.ObserveRun(t.GetType(), outcome, time.Since(start))
		c.Metrics.SetProgress(tracker.Snapshot().Progress)
	}()

	tracker.SetPhase(progress.Loading)
	cube, err := raster.Load(inputPath, c.Log)
	if err != nil {
		return nil, err
	}
	depth := cube.Depth
	if err = t.Init(depth); err != nil {
		return nil, err
	}
	outDepth := t.OutDepth(depth)
	if err = checkMemory(c.MemoryMB, cube, outDepth, t.HasDiagnostics()); err != nil {
		return nil, err
	}

	tracker.SetPhase(progress.Processing)
	fmt.Fprintf(c.Log, "Applying %s to %s cube with %d workers\n", t.GetType(), cube.DimensionsToString(), c.MaxWorkers)
	tasks := Partition(cube)
	a := NewAssembler(cube.Height, cube.Width, outDepth, t.HasDiagnostics())
	a.Progress = tracker
	err = Dispatch(ctx, tasks, t, c.MaxWorkers, func(res Result) error {
		if err := a.Add(res); err != nil {
			return err
		}
		c.Metrics.AddRows(t.GetType(), 1)
		c.Metrics.SetProgress(tracker.Snapshot().Progress)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err = a.Finish(); err != nil {
		return nil, err
	}

	w := &OutputWriter{Log: c.Log, Progress: tracker, Preview: c.Preview}
	written, err := w.Write(cube, inputPath, depth, t, a)
	if err != nil {
		return nil, err
	}
	tracker.Done(written.Main)
	fmt.Fprintf(c.Log, "Done after %v\n", time.Since(start))
	return &written, nil
}

// Estimates peak memory as the loaded cube, its row copies and the assembled outputs,
// and rejects runs exceeding 70% of memoryMB. A zero memoryMB disables the check
func checkMemory(memoryMB int, c *raster.Cube, outDepth int, diagnostics bool) error {
	if memoryMB <= 0 {
		return nil
	}
	pixels := int64(c.Height) * int64(c.Width)
	values := 2*pixels*int64(c.Depth) + pixels*int64(outDepth)
	if diagnostics {
		values += 2 * pixels
	}
	neededMB := values * 4 / 1024 / 1024
	if budgetMB := int64(memoryMB) * 7 / 10; neededMB > budgetMB {
		return fmt.Errorf("transforming %s cube needs about %d MB, more than the %d MB budget", c.DimensionsToString(), neededMB, budgetMB)
	}
	return nil
}
