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

// Package gdalio reads and writes raster cubes through GDAL. GeoTIFF is the
// reference format; any format GDAL can open is accepted for reading.
// Importing the package registers the driver with the raster package.
package gdalio

import (
	"fmt"
	"io"

	"github.com/lukeroth/gdal"
	"github.com/zmadru/SatChange/internal/raster"
)

// Output format used when saving
const outputFormat = "GTiff"

type Driver struct{}

func init() { raster.SetDriver(Driver{}) }

func (Driver) Name() string { return "GDAL" }

// GDAL probes file contents itself, so it accepts any name not claimed by an earlier driver
func (Driver) Accepts(fileName string) bool { return true }

func (Driver) Load(fileName string, logWriter io.Writer) (*raster.Cube, error) {
	ds, err := gdal.Open(fileName, gdal.ReadOnly)
	if err != nil {
		return nil, &raster.IOError{Op: "open", Path: fileName, Err: err}
	}
	defer ds.Close()

	width, height, depth := ds.RasterXSize(), ds.RasterYSize(), ds.RasterCount()
	c, err := raster.NewCube(height, width, depth, nil)
	if err != nil {
		return nil, &raster.IOError{Op: "read", Path: fileName, Err: err}
	}
	c.GeoTransform = ds.GeoTransform()
	c.Projection = ds.Projection()

	first := ds.RasterBand(1)
	c.DType = dtypeFromGDAL(first.RasterDataType())
	c.NoData, c.HasNoData = first.NoDataValue()

	plane := make([]float32, width*height)
	for b := 0; b < depth; b++ {
		band := ds.RasterBand(b + 1)
		if err := band.IO(gdal.Read, 0, 0, width, height, plane, width, height, 0, 0); err != nil {
			return nil, &raster.IOError{Op: "read", Path: fileName, Err: fmt.Errorf("band %d: %w", b+1, err)}
		}
		c.SetBand(b, plane)
	}
	fmt.Fprintf(logWriter, "Read %s %s cube with %s values from %s\n", c.DimensionsToString(), ds.Driver().ShortName(), c.DType, fileName)
	return c, nil
}

func dtypeFromGDAL(t gdal.DataType) raster.DType {
	switch t {
	case gdal.Byte:
		return raster.Byte
	case gdal.Int16:
		return raster.Int16
	}
	return raster.Float32
}

func gdalFromDType(d raster.DType) gdal.DataType {
	switch d {
	case raster.Byte:
		return gdal.Byte
	case raster.Int16:
		return gdal.Int16
	}
	return gdal.Float32
}

// Writes c.Depth bands with the cube's data type, georeference and nodata value, and flushes to disk
func (Driver) Save(fileName string, c *raster.Cube) error {
	driver, err := gdal.GetDriverByName(outputFormat)
	if err != nil {
		return &raster.IOError{Op: "create", Path: fileName, Err: err}
	}
	ds := driver.Create(fileName, c.Width, c.Height, c.Depth, gdalFromDType(c.DType), nil)
	defer ds.Close()

	if err := ds.SetGeoTransform(c.GeoTransform); err != nil {
		return &raster.IOError{Op: "write", Path: fileName, Err: err}
	}
	if c.Projection != "" {
		if err := ds.SetProjection(c.Projection); err != nil {
			return &raster.IOError{Op: "write", Path: fileName, Err: err}
		}
	}

	for b := 0; b < c.Depth; b++ {
		band := ds.RasterBand(b + 1)
		if err := band.IO(gdal.Write, 0, 0, c.Width, c.Height, planeBuffer(c, b), c.Width, c.Height, 0, 0); err != nil {
			return &raster.IOError{Op: "write", Path: fileName, Err: fmt.Errorf("band %d: %w", b+1, err)}
		}
		if err := band.SetNoDataValue(c.NoData); err != nil {
			return &raster.IOError{Op: "write", Path: fileName, Err: fmt.Errorf("band %d nodata: %w", b+1, err)}
		}
	}
	ds.FlushCache()
	return nil
}

// Converts band b into a buffer of the GDAL element type matching the cube data type
func planeBuffer(c *raster.Cube, b int) interface{} {
	plane := c.Band(b)
	switch c.DType {
	case raster.Byte:
		buf := make([]uint8, len(plane))
		for i, v := range plane {
			buf[i] = uint8(c.DType.Clamp(float64(v), c.NoData))
		}
		return buf
	case raster.Int16:
		buf := make([]int16, len(plane))
		for i, v := range plane {
			buf[i] = int16(c.DType.Clamp(float64(v), c.NoData))
		}
		return buf
	}
	return plane
}
