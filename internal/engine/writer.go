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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zmadru/SatChange/internal/progress"
	"github.com/zmadru/SatChange/internal/raster"
	"github.com/zmadru/SatChange/internal/transform"
)

// Paths of the files written by a run. Empty entries were not written
type Outputs struct {
	Main    string `json:"main"`
	RMSE    string `json:"rmse,omitempty"`
	Pearson string `json:"pearson,omitempty"`
	Side    string `json:"side,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// All paths in the order they were written
func (o *Outputs) Paths() []string {
	ps := []string{}
	for _, p := range []string{o.Main, o.RMSE, o.Pearson, o.Side, o.Preview} {
		if p != "" {
			ps = append(ps, p)
		}
	}
	return ps
}

// Splits a path into stem and extension. The extension keeps its dot and
// includes an inner extension before .gz or .gzip, as in cube.fits.gz
func SplitExt(path string) (stem, ext string) {
	ext = filepath.Ext(path)
	stem = strings.TrimSuffix(path, ext)
	if lower := strings.ToLower(ext); lower == ".gz" || lower == ".gzip" {
		inner := filepath.Ext(stem)
		stem = strings.TrimSuffix(stem, inner)
		ext = inner + ext
	}
	return stem, ext
}

// Derives output names from the input path: stem + suffix + extension
func OutputNames(inputPath string, t transform.Transform, depth int, preview string) Outputs {
	stem, ext := SplitExt(inputPath)
	n := t.Naming()
	o := Outputs{Main: stem + n.Main + ext}
	if t.HasDiagnostics() {
		o.RMSE = stem + n.RMSE + ext
		o.Pearson = stem + n.Pearson + ext
	}
	if sc, ok := t.(transform.SideChannel); ok {
		suffix, _ := sc.SideChannel(depth)
		o.Side = stem + suffix
	}
	if preview != "" {
		o.Preview = stem + n.Main + preview
	}
	return o
}

// Persists the assembled results of a run next to the input file
type OutputWriter struct {
	Log      io.Writer
	Progress *progress.Tracker // optional, switched to saving while writing
	Preview  string            // ".jpg", ".tif" or empty
}

// Writes the main output, the diagnostic bands and any side channel file.
// On failure, every file written by this call is removed again
func (w *OutputWriter) Write(donor *raster.Cube, inputPath string, depth int, t transform.Transform, a *Assembler) (outs Outputs, err error) {
	if w.Progress != nil {
		restore := w.Progress.BeginSaving()
		defer restore()
	}
	names := OutputNames(inputPath, t, depth, w.Preview)

	created := []string{}
	defer func() {
		if err != nil {
			for _, p := range created {
				os.Remove(p)
			}
			outs = Outputs{}
		}
	}()

	primary, err := raster.NewCubeLike(donor, a.OutDepth, a.Main)
	if err != nil {
		return outs, err
	}
	primary.DType, primary.NoData, primary.HasNoData = t.OutputType(), raster.DefaultNoData, true
	if err = raster.Save(names.Main, donor, primary); err != nil {
		return outs, err
	}
	created = append(created, names.Main)
	fmt.Fprintf(w.Log, "Wrote %s %s cube to %s\n", primary.DimensionsToString(), primary.DType, names.Main)

	if a.RMSE != nil {
		for _, d := range []struct {
			fileName string
			plane    []float32
		}{{names.RMSE, a.RMSE}, {names.Pearson, a.Pearson}} {
			var diag *raster.Cube
			if diag, err = raster.NewCubeLike(donor, 1, d.plane); err != nil {
				return outs, err
			}
			diag.DType, diag.NoData, diag.HasNoData = raster.Float32, raster.DefaultNoData, true
			if err = raster.Save(d.fileName, donor, diag); err != nil {
				return outs, err
			}
			created = append(created, d.fileName)
			fmt.Fprintf(w.Log, "Wrote diagnostics to %s\n", d.fileName)
		}
	}

	if sc, ok := t.(transform.SideChannel); ok {
		_, lines := sc.SideChannel(depth)
		if err = writeLines(names.Side, lines); err != nil {
			return outs, err
		}
		created = append(created, names.Side)
		fmt.Fprintf(w.Log, "Wrote %d lines to %s\n", len(lines), names.Side)
	}

	if names.Preview != "" {
		if err = raster.WritePreview(names.Preview, primary, 0); err != nil {
			return outs, err
		}
		created = append(created, names.Preview)
		fmt.Fprintf(w.Log, "Wrote preview to %s\n", names.Preview)
	}
	return names, nil
}

// Writes one line per entry, removing the file on failure
func writeLines(fileName string, lines []string) error {
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(fileName, []byte(data), 0644); err != nil {
		os.Remove(fileName)
		return &raster.IOError{Op: "write", Path: fileName, Err: err}
	}
	return nil
}
