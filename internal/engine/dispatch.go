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
	"sync"

	"github.com/zmadru/SatChange/internal/raster"
	"github.com/zmadru/SatChange/internal/transform"
)

// The transformed values of one row
type Result struct {
	Row     int
	Data    []float32 // width*outDepth values, series contiguous per column
	RMSE    []float32 // width values, nil without diagnostics
	Pearson []float32
}

// A transform failure on a row. Panics inside kernels are reported the same way
type TransformError struct {
	Row  int
	Type string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s transform failed on row %d: %s", e.Type, e.Row, e.Err.Error())
}

func (e *TransformError) Unwrap() error { return e.Err }

// Transforms all tasks with up to maxWorkers goroutines and hands each result
// to emit. Results arrive in completion order, emit is never called concurrently.
// The first error cancels tasks not yet started and is returned once the
// tasks in flight have finished.
func Dispatch(ctx context.Context, tasks []RowTask, t transform.Transform, maxWorkers int, emit func(Result) error) error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		failOnce  sync.Once
		firstErr  error
		emitMutex sync.Mutex
	)
	fail := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	sem := make(chan bool, maxWorkers)
	for i := range tasks {
		sem <- true
		if runCtx.Err() != nil {
			<-sem
			break
		}
		go func(task *RowTask) {
			defer func() { <-sem }()
			res, err := processRow(task, t)
			task.Data = nil
			if err != nil {
				fail(err)
				return
			}
			if runCtx.Err() != nil {
				return
			}
			emitMutex.Lock()
			err = emit(res)
			emitMutex.Unlock()
			if err != nil {
				fail(err)
			}
		}(&tasks[i])
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Applies a fresh kernel to every series of the row
func processRow(task *RowTask, t transform.Transform) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, &TransformError{Row: task.Row, Type: t.GetType(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	kernel, err := t.NewKernel(task.Depth)
	if err != nil {
		return Result{}, &TransformError{Row: task.Row, Type: t.GetType(), Err: err}
	}
	outDepth, dtype := t.OutDepth(task.Depth), t.OutputType()
	res = Result{Row: task.Row, Data: make([]float32, task.Width*outDepth)}
	if t.HasDiagnostics() {
		res.RMSE = make([]float32, task.Width)
		res.Pearson = make([]float32, task.Width)
	}

	in := make([]float64, task.Depth)
	out := make([]float64, outDepth)
	for col := 0; col < task.Width; col++ {
		for i, v := range task.Data[col*task.Depth : (col+1)*task.Depth] {
			in[i] = float64(v)
		}
		for i := range out {
			out[i] = 0
		}
		diag, err := kernel(in, out)
		if err != nil {
			return Result{}, &TransformError{Row: task.Row, Type: t.GetType(), Err: fmt.Errorf("column %d: %w", col, err)}
		}
		dst := res.Data[col*outDepth : (col+1)*outDepth]
		for i, v := range out {
			if dtype != raster.Float32 {
				v = dtype.Clamp(v, raster.DefaultNoData) // truncate in double precision
			}
			dst[i] = float32(v)
		}
		if res.RMSE != nil {
			res.RMSE[col] = float32(diag.RMSE)
			res.Pearson[col] = float32(diag.Pearson)
		}
	}
	return res, nil
}
