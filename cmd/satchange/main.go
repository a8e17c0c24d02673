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
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	_ "github.com/zmadru/SatChange/internal/raster/gdalio" // GeoTIFF and other GDAL formats

	"github.com/zmadru/SatChange/internal/config"
	"github.com/zmadru/SatChange/internal/engine"
	"github.com/zmadru/SatChange/internal/logging"
	"github.com/zmadru/SatChange/internal/metrics"
	"github.com/zmadru/SatChange/internal/raster"
	"github.com/zmadru/SatChange/internal/transform"
)

const version = "0.3.0"

var cfgFile = flag.String("config", "satchange.yaml", "load settings from YAML `file` if present. SATCHANGE_ environment variables override it")
var workers = flag.Int("workers", 0, "number of worker goroutines, 0=from config, else half the logical cores")
var logFile = flag.String("log", "", "save log output to `file` in addition to stdout")
var preview = flag.String("preview", "", "also write the first output band as preview image with the given suffix, `.jpg` or `.tif`")

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var addr = flag.String("addr", "", "serve: listen on `address`, default from config or :8080")
var metricsAddr = flag.String("metrics", "", "serve Prometheus metrics on `address`, e.g. :9100")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` after startup (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change user id after startup, -1=keep")

var transformCommands = []struct{ name, help string }{
	{"acf", "Autocorrelation, scaled by 10000"},
	{"periodogram", "Power spectral density, plus a file with the period of each bin"},
	{"sg", "Savitzky-Golay smoothing"},
	{"fft", "Low-pass filter at the dominant frequency"},
	{"whittaker", "Whittaker smoothing"},
	{"max", "Rolling maximum cascade"},
	{"interp", "Fill gaps marked by the sentinel value"},
	{"viability", "Gap statistics and viability score"},
	{"change", "Change mask"},
	{"index", "Band math, e.g. \"(b4-b3)/(b4+b3)\", or an NDVI preset: " + strings.Join(transform.Sensors(), ", ")},
}

func main() {
	logWriter := logging.New(os.Stdout)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `%s
Usage: %s [-flag value] <command> <inputPath> [params]

Transform commands, applied to every pixel time series of the input cube:
`, notice, os.Args[0])
		for _, cmd := range transformCommands {
			fmt.Fprintf(os.Stdout, "  %-12s %-42s %s\n", cmd.name, paramUsage[cmd.name], cmd.help)
		}
		fmt.Fprintf(os.Stdout, `
Other commands:
  run     <job.json>         Run the transform job described in a JSON file
  stats   <in>               Show statistics of every band
  stack   <out> <in>...      Stack single-band files into an int16 cube, scaled by 10000
  split   <in> <band>        Split a cube into two at the given band
  serve                      Serve the REST API
  config                     Show the effective configuration
  legal                      Show license and attribution information
  version                    Show version information

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logWriter.Fatalf("Error loading configuration: %s\n", err.Error())
	}
	applyFlags(&cfg)

	// Initialize logging to file in addition to stdout, if selected
	if cfg.Log.File != "" {
		if err := logWriter.AlsoToFile(cfg.Log.File); err != nil {
			logWriter.Fatalf("Unable to open logfile '%s': %s\n", cfg.Log.File, err.Error())
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			logWriter.Fatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logWriter.Fatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	c := engine.NewContext(logWriter)
	if cfg.Engine.Workers > 0 {
		c.MaxWorkers = cfg.Engine.Workers
	}
	if cfg.Engine.MemoryMB > 0 {
		c.MemoryMB = cfg.Engine.MemoryMB
	}
	c.Preview = cfg.Engine.Preview
	c.Metrics = metrics.NewRecorder()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := c.Metrics.ListenAndServe(cfg.Metrics.Addr); err != nil {
				fmt.Fprintf(logWriter, "Metrics listener stopped: %s\n", err.Error())
			}
		}()
	}

	switch args[0] {
	case "serve":
		err = cmdServe(c, cfg, *chroot, *setuid)
	case "run":
		err = cmdJob(c, args[1:], os.Stdout)
	case "stats":
		err = cmdStats(args[1:], logWriter)
	case "stack":
		err = cmdStack(args[1:], logWriter)
	case "split":
		err = cmdSplit(args[1:], logWriter)
	case "config":
		err = config.Dump(logWriter, cfg)
	case "legal":
		fmt.Fprint(logWriter, legal)
	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
	case "help", "?":
		flag.Usage()
	default:
		if transform.GetFactory(args[0]) == nil {
			fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
			flag.Usage()
			logWriter.Close()
			os.Exit(1)
		}
		fmt.Fprintf(logWriter, "Using %d workers\n", c.MaxWorkers)
		err = cmdTransform(c, args[0], args[1:], os.Stdout)
		if err == nil {
			fmt.Fprintf(logWriter, "Done after %v\n", time.Since(start))
		}
	}

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			logWriter.Fatalf("Could not create memory profile: %s\n", err.Error())
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			logWriter.Fatalf("Could not write allocation profile: %s\n", err.Error())
		}
	}

	if err != nil {
		pprof.StopCPUProfile()
		logWriter.Fatalf("%s\n", describeError(err))
	}
	logWriter.Close()
}

// Command line flags take precedence over file and environment settings
func applyFlags(cfg *config.Config) {
	if *workers > 0 {
		cfg.Engine.Workers = *workers
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *preview != "" {
		cfg.Engine.Preview = *preview
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
}

// One-line message for errors reaching the command line
func describeError(err error) string {
	var ioErr *raster.IOError
	var tErr *engine.TransformError
	var uErr usageError
	switch {
	case errors.As(err, &uErr):
		return uErr.Error()
	case errors.As(err, &ioErr):
		return "I/O error: " + ioErr.Error()
	case errors.As(err, &tErr):
		return "Transform error: " + tErr.Error()
	}
	return "Error: " + err.Error()
}
