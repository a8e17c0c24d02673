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
	"fmt"
	"math"
)

// Numeric encoding of raster values on disk
type DType int

const (
	Float32 DType = iota
	Int16
	Byte
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int16:
		return "int16"
	case Byte:
		return "byte"
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// Converts a value to the range of the data type, truncating towards zero for
// integer types. NaNs map to the clamped nodata value for integer types.
func (d DType) Clamp(v float64, noData float64) float64 {
	switch d {
	case Int16:
		if v != v {
			if v = noData; v != v {
				return 0
			}
		}
		if v < math.MinInt16 {
			return math.MinInt16
		}
		if v > math.MaxInt16 {
			return math.MaxInt16
		}
		return math.Trunc(v)
	case Byte:
		if v != v {
			if v = noData; v != v {
				return 0
			}
		}
		if v < 0 {
			return 0
		}
		if v > math.MaxUint8 {
			return math.MaxUint8
		}
		return math.Trunc(v)
	}
	return float64(float32(v))
}

// Default nodata sentinel written to every output band
const DefaultNoData = -999

// A georeferenced raster cube held fully in memory.
//
// Data is laid out row-major as (row, col, band): the value of band b at
// pixel (r, c) is Data[(r*Width+c)*Depth+b]. Every pixel's time series is
// therefore a contiguous slice of length Depth.
type Cube struct {
	FileName     string
	Height       int
	Width        int
	Depth        int
	Data         []float32
	GeoTransform [6]float64 // origin x, pixel width, row rotation, origin y, column rotation, pixel height
	Projection   string     // opaque CRS descriptor, WKT for GDAL sources
	NoData       float64
	HasNoData    bool
	DType        DType
}

// Creates a cube of the given shape. Data is allocated if nil, and must have height*width*depth entries otherwise
func NewCube(height, width, depth int, data []float32) (*Cube, error) {
	if height <= 0 || width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("invalid cube shape %dx%dx%d", height, width, depth)
	}
	size := height * width * depth
	if data == nil {
		data = make([]float32, size)
	} else if len(data) != size {
		return nil, fmt.Errorf("cube data has %d values, shape %dx%dx%d needs %d", len(data), height, width, depth, size)
	}
	return &Cube{
		Height:       height,
		Width:        width,
		Depth:        depth,
		Data:         data,
		GeoTransform: [6]float64{0, 1, 0, 0, 0, -1},
		DType:        Float32,
	}, nil
}

// Creates a cube with the spatial shape, georeference and file name of the donor and the given depth
func NewCubeLike(donor *Cube, depth int, data []float32) (*Cube, error) {
	c, err := NewCube(donor.Height, donor.Width, depth, data)
	if err != nil {
		return nil, err
	}
	c.FileName = donor.FileName
	c.GeoTransform = donor.GeoTransform
	c.Projection = donor.Projection
	return c, nil
}

// Returns the time series of the pixel at row r and column c. The slice aliases the cube data
func (c *Cube) Series(r, col int) []float32 {
	off := (r*c.Width + col) * c.Depth
	return c.Data[off : off+c.Depth]
}

// Returns the values of row r, (width x depth) values. The slice aliases the cube data
func (c *Cube) Row(r int) []float32 {
	rowLen := c.Width * c.Depth
	return c.Data[r*rowLen : (r+1)*rowLen]
}

// Copies band b into a new (height x width) plane
func (c *Cube) Band(b int) []float32 {
	plane := make([]float32, c.Height*c.Width)
	for i := range plane {
		plane[i] = c.Data[i*c.Depth+b]
	}
	return plane
}

// Sets band b from a (height x width) plane
func (c *Cube) SetBand(b int, plane []float32) {
	for i, v := range plane {
		c.Data[i*c.Depth+b] = v
	}
}

// Drops the reference to the pixel data so it can be garbage collected
func (c *Cube) Release() {
	c.Data = nil
}

func (c *Cube) DimensionsToString() string {
	return fmt.Sprintf("%dx%dx%d", c.Height, c.Width, c.Depth)
}

// Size of the pixel data in MiB
func (c *Cube) SizeMB() int {
	return int(int64(c.Height) * int64(c.Width) * int64(c.Depth) * 4 / 1024 / 1024)
}
