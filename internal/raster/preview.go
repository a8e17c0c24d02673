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

package raster

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/zmadru/SatChange/internal/stats"
	"golang.org/x/image/tiff"
)

// Colour ramp from low (red) over mid (yellow) to high (green) values, blended in HCL space
var previewRamp = []colorful.Color{
	{R: 0.75, G: 0.10, B: 0.10},
	{R: 0.95, G: 0.85, B: 0.25},
	{R: 0.10, G: 0.55, B: 0.20},
}

// Maps t in [0,1] onto the preview ramp
func rampColor(t float64) color.RGBA {
	if t <= 0 {
		r, g, b := previewRamp[0].RGB255()
		return color.RGBA{r, g, b, 255}
	}
	if t >= 1 {
		r, g, b := previewRamp[len(previewRamp)-1].RGB255()
		return color.RGBA{r, g, b, 255}
	}
	segs := float64(len(previewRamp) - 1)
	i := int(t * segs)
	local := t*segs - float64(i)
	r, g, b := previewRamp[i].BlendHcl(previewRamp[i+1], local).Clamped().RGB255()
	return color.RGBA{r, g, b, 255}
}

// Writes band b of the cube as a preview image. The format follows the file suffix:
// .jpg/.jpeg gives a colour-ramped 8-bit JPEG, .tif/.tiff a 16-bit greyscale TIFF.
// Values are stretched between the 2nd and 98th percentile; nodata and NaN render black.
func WritePreview(fileName string, c *Cube, b int) error {
	plane := c.Band(b)
	s := stats.NewStats(plane, c.NoData, c.HasNoData)
	min, max := stats.PercentileRange(plane, s, 0.02, 0.98)

	f, err := os.Create(fileName)
	if err != nil {
		return &IOError{Op: "create", Path: fileName, Err: err}
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg":
		err = WritePreviewJPG(w, plane, c.Width, c.Height, min, max, c.NoData, c.HasNoData, 95)
	case ".tif", ".tiff":
		err = WritePreviewTIFF16(w, plane, c.Width, c.Height, min, max, c.NoData, c.HasNoData)
	default:
		err = fmt.Errorf("unknown preview suffix")
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		f.Close()
		os.Remove(fileName)
		return &IOError{Op: "write", Path: fileName, Err: err}
	}
	return nil
}

// Writes a (height x width) plane to JPEG with the colour ramp, using the given min and max
func WritePreviewJPG(writer io.Writer, plane []float32, width, height int, min, max float32, noData float64, hasNoData bool, quality int) error {
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	if !(max > min) {
		scale = 0
	}
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			v := plane[yoffset+x]
			if v != v || (hasNoData && float64(v) == noData) {
				img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
				continue
			}
			img.SetRGBA(x, y, rampColor(float64((v-min)*scale)))
		}
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Writes a (height x width) plane to 16-bit greyscale TIFF, using the given min and max
func WritePreviewTIFF16(writer io.Writer, plane []float32, width, height int, min, max float32, noData float64, hasNoData bool) error {
	img := image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1 / (max - min)
	if !(max > min) {
		scale = 0
	}
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := plane[yoffset+x]
			if gray != gray || (hasNoData && float64(gray) == noData) {
				gray = 0
			} else {
				gray = (gray - min) * scale
			}
			if gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			img.SetGray16(x, y, color.Gray16{uint16(gray * 65535)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
