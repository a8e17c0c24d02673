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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zmadru/SatChange/internal/config"
	"github.com/zmadru/SatChange/internal/engine"
	"github.com/zmadru/SatChange/internal/raster"
	"github.com/zmadru/SatChange/internal/rest"
	"github.com/zmadru/SatChange/internal/stats"
	"github.com/zmadru/SatChange/internal/transform"
)

// Positional parameters accepted after the input path, per transform command
var paramUsage = map[string]string{
	"acf":         "[nlags]",
	"periodogram": "",
	"sg":          "[window [polyorder]]",
	"fft":         "[threshold]",
	"whittaker":   "[lambda]",
	"max":         "",
	"interp":      "[method [sentinel]]",
	"viability":   "[start end] [sentinel]",
	"change":      "[heuristic [sensitivity|period|ratio]]",
	"index":       "<expression|sensor>",
}

type usageError struct {
	command string
}

func (e usageError) Error() string {
	return fmt.Sprintf("usage: satchange %s <inputPath> %s", e.command, paramUsage[e.command])
}

// Builds the transform for a command from its positional parameters
func parseTransform(command string, params []string) (transform.Transform, error) {
	bad := usageError{command}
	switch command {
	case "acf":
		t := transform.NewACFDefault()
		if len(params) > 1 {
			return nil, bad
		}
		if len(params) == 1 {
			n, err := strconv.Atoi(params[0])
			if err != nil {
				return nil, fmt.Errorf("acf: nlags: %w", err)
			}
			t.NLags = n
		}
		return t, nil

	case "periodogram":
		if len(params) > 0 {
			return nil, bad
		}
		return transform.NewPeriodogram(), nil

	case "sg":
		t := transform.NewSavitzkyGolayDefault()
		if len(params) > 2 {
			return nil, bad
		}
		ints, err := atois(params)
		if err != nil {
			return nil, fmt.Errorf("sg: %w", err)
		}
		if len(ints) > 0 {
			t.Window = ints[0]
		}
		if len(ints) > 1 {
			t.PolyOrder = ints[1]
		}
		return t, nil

	case "fft":
		t := transform.NewFFTFilterDefault()
		if len(params) > 1 {
			return nil, bad
		}
		if len(params) == 1 {
			f, err := strconv.ParseFloat(params[0], 64)
			if err != nil {
				return nil, fmt.Errorf("fft: threshold: %w", err)
			}
			t.Threshold = f
		}
		return t, nil

	case "whittaker":
		t := transform.NewWhittakerDefault()
		if len(params) > 1 {
			return nil, bad
		}
		if len(params) == 1 {
			f, err := strconv.ParseFloat(params[0], 64)
			if err != nil {
				return nil, fmt.Errorf("whittaker: lambda: %w", err)
			}
			t.Lambda = f
		}
		return t, nil

	case "max":
		if len(params) > 0 {
			return nil, bad
		}
		return transform.NewMaxFilter(), nil

	case "interp":
		t := transform.NewInterpolatorDefault()
		if len(params) > 2 {
			return nil, bad
		}
		if len(params) > 0 {
			t.Method = params[0]
		}
		if len(params) > 1 {
			f, err := strconv.ParseFloat(params[1], 64)
			if err != nil {
				return nil, fmt.Errorf("interp: sentinel: %w", err)
			}
			t.Sentinel = f
		}
		return t, nil

	case "viability":
		t := transform.NewViabilityDefault()
		if len(params) == 1 || len(params) > 3 {
			return nil, bad
		}
		if len(params) >= 2 {
			ints, err := atois(params[:2])
			if err != nil {
				return nil, fmt.Errorf("viability: %w", err)
			}
			t.Start, t.End = ints[0], ints[1]
		}
		if len(params) == 3 {
			f, err := strconv.ParseFloat(params[2], 64)
			if err != nil {
				return nil, fmt.Errorf("viability: sentinel: %w", err)
			}
			t.Sentinel = f
		}
		return t, nil

	case "change":
		t := transform.NewChangeDetectorDefault()
		if len(params) > 2 {
			return nil, bad
		}
		if len(params) > 0 {
			t.Heuristic = params[0]
		}
		if len(params) > 1 {
			f, err := strconv.ParseFloat(params[1], 64)
			if err != nil {
				return nil, fmt.Errorf("change: %w", err)
			}
			switch t.Heuristic {
			case "halfperiod":
				t.Period = int(f)
			case "halves":
				t.Ratio = f
			default:
				t.Sensitivity = f
			}
		}
		return t, nil

	case "index":
		if len(params) != 1 {
			return nil, bad
		}
		t := transform.NewIndexDefault()
		for _, s := range transform.Sensors() {
			if s == params[0] {
				t.Sensor = s
				return t, nil
			}
		}
		t.Expression = params[0]
		return t, nil
	}
	return nil, fmt.Errorf("unknown transform command '%s'", command)
}

func atois(params []string) ([]int, error) {
	ints := make([]int, len(params))
	for i, p := range params {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		ints[i] = n
	}
	return ints, nil
}

// Runs a transform command: satchange <command> <inputPath> [params]
func cmdTransform(c *engine.Context, command string, args []string, progressWriter io.Writer) error {
	if len(args) < 1 {
		return usageError{command}
	}
	t, err := parseTransform(command, args[1:])
	if err != nil {
		return err
	}
	_, err = runWithProgress(c, args[0], t, progressWriter)
	return err
}

// Description of a run in a JSON job file
type Job struct {
	FileName  string          `json:"fileName"`
	Transform json.RawMessage `json:"transform"`
	Workers   int             `json:"workers,omitempty"`
	Preview   string          `json:"preview,omitempty"`
}

func loadJob(fileName string) (*Job, transform.Transform, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", fileName, err)
	}
	if job.FileName == "" || len(job.Transform) == 0 {
		return nil, nil, fmt.Errorf("%s: job needs fileName and transform", fileName)
	}
	t, err := transform.Unmarshal(job.Transform)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return &job, t, nil
}

// Runs the job described in a JSON file: satchange run <job.json>
func cmdJob(c *engine.Context, args []string, progressWriter io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: satchange run <job.json>")
	}
	job, t, err := loadJob(args[0])
	if err != nil {
		return err
	}
	if job.Workers > 0 {
		c.MaxWorkers = job.Workers
	}
	if job.Preview != "" {
		c.Preview = job.Preview
	}
	m, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "Applying to %s with these settings:\n%s\n", job.FileName, string(m))
	_, err = runWithProgress(c, job.FileName, t, progressWriter)
	return err
}

// Runs the transform while polling the tracker, printing progress in place
func runWithProgress(c *engine.Context, inputPath string, t transform.Transform, progressWriter io.Writer) (*engine.Outputs, error) {
	type runResult struct {
		outs *engine.Outputs
		err  error
	}
	done := make(chan runResult, 1)
	go func() {
		outs, err := engine.Run(context.Background(), c, inputPath, t)
		done <- runResult{outs, err}
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case res := <-done:
			if res.err == nil {
				fmt.Fprintf(progressWriter, "\r%d%%\n", 100)
				for _, p := range res.outs.Paths() {
					fmt.Fprintf(c.Log, "Output: %s\n", p)
				}
			} else if last >= 0 {
				fmt.Fprintln(progressWriter)
			}
			return res.outs, res.err
		case <-ticker.C:
			if p := c.Progress.Snapshot().Progress; p != last {
				fmt.Fprintf(progressWriter, "\r%d%%", p)
				last = p
			}
		}
	}
}

// Prints statistics of every band: satchange stats <inputPath>
func cmdStats(args []string, logWriter io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: satchange stats <inputPath>")
	}
	c, err := raster.Load(args[0], logWriter)
	if err != nil {
		return err
	}
	for b := 0; b < c.Depth; b++ {
		s := stats.NewStats(c.Band(b), c.NoData, c.HasNoData)
		note := ""
		if s.LowDynamicRange() {
			note = " constant"
		}
		fmt.Fprintf(logWriter, "%d: %s%s\n", b+1, s, note)
	}
	return nil
}

// Stacks single-band files into one Int16 cube: satchange stack <out> <in>...
func cmdStack(args []string, logWriter io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: satchange stack <outputPath> <inputPath>...")
	}
	c, err := raster.Stack(args[1:], 10000, logWriter)
	if err != nil {
		return err
	}
	if err := raster.Save(args[0], nil, c); err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Wrote %s cube to %s\n", c.DimensionsToString(), args[0])
	return nil
}

// Splits a cube at a band index into stem_1 and stem_2: satchange split <in> <band>
func cmdSplit(args []string, logWriter io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: satchange split <inputPath> <band>")
	}
	at, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("split: band: %w", err)
	}
	c, err := raster.Load(args[0], logWriter)
	if err != nil {
		return err
	}
	first, second, err := raster.Split(c, at)
	if err != nil {
		return err
	}
	stem, ext := engine.SplitExt(args[0])
	names := []string{stem + "_1" + ext, stem + "_2" + ext}
	for i, part := range []*raster.Cube{first, second} {
		if err := raster.Save(names[i], c, part); err != nil {
			if i > 0 {
				os.Remove(names[0])
			}
			return err
		}
		fmt.Fprintf(logWriter, "Wrote %s cube to %s\n", part.DimensionsToString(), names[i])
	}
	return nil
}

// Serves the REST API until the listener fails
func cmdServe(c *engine.Context, cfg config.Config, chroot string, setuid int) error {
	gin.SetMode(cfg.Server.Mode)
	if err := rest.MakeSandbox(c.Log, chroot, setuid); err != nil {
		return err
	}
	return rest.NewServer(c).Serve(cfg.Server.Addr)
}
