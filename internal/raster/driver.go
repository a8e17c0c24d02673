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
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// An I/O failure reading or writing a raster file
type IOError struct {
	Op   string // "open", "read", "create" or "write"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s", e.Op, e.Path, e.Err.Error())
}

func (e *IOError) Unwrap() error { return e.Err }

// A raster file format backend
type Driver interface {
	Name() string
	Accepts(fileName string) bool                             // true if the driver handles files with this name
	Load(fileName string, logWriter io.Writer) (*Cube, error) // reads all bands into memory
	Save(fileName string, c *Cube) error                      // writes c.Depth bands with c.DType and c.NoData
}

var (
	driversLock sync.RWMutex
	drivers     []Driver // in order of registration, first accepting driver wins
)

// Registers a raster driver. Drivers registered earlier take precedence
func SetDriver(d Driver) {
	driversLock.Lock()
	defer driversLock.Unlock()
	for _, e := range drivers {
		if e.Name() == d.Name() {
			panic(fmt.Sprintf("error: re-registering raster driver %s\n", d.Name()))
		}
	}
	drivers = append(drivers, d)
}

// Returns the driver registered for the given name, or nil
func GetDriver(name string) Driver {
	driversLock.RLock()
	defer driversLock.RUnlock()
	for _, d := range drivers {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Returns the first registered driver accepting the file name, or nil
func DriverFor(fileName string) Driver {
	driversLock.RLock()
	defer driversLock.RUnlock()
	for _, d := range drivers {
		if d.Accepts(fileName) {
			return d
		}
	}
	return nil
}

var errNoDriver = errors.New("no raster driver for this file type")

// Loads a raster file fully into memory. Single-band files have depth 1.
// Failures are reported as *IOError.
func Load(fileName string, logWriter io.Writer) (*Cube, error) {
	d := DriverFor(fileName)
	if d == nil {
		return nil, &IOError{Op: "open", Path: fileName, Err: errNoDriver}
	}
	c, err := d.Load(fileName, logWriter)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			return nil, err
		}
		return nil, &IOError{Op: "open", Path: fileName, Err: err}
	}
	if c.Height <= 0 || c.Width <= 0 || c.Depth <= 0 || len(c.Data) != c.Height*c.Width*c.Depth {
		return nil, &IOError{Op: "read", Path: fileName,
			Err: fmt.Errorf("inconsistent cube shape %s with %d values", c.DimensionsToString(), len(c.Data))}
	}
	c.FileName = fileName
	return c, nil
}

// Saves out under the given file name with the georeference of the donor.
// Writes out.Depth bands encoded as out.DType, with out.NoData set on every band.
// Removes a partially written file on failure.
func Save(fileName string, donor, out *Cube) error {
	d := DriverFor(fileName)
	if d == nil {
		return &IOError{Op: "create", Path: fileName, Err: errNoDriver}
	}
	if donor != nil {
		if donor.Height != out.Height || donor.Width != out.Width {
			return &IOError{Op: "create", Path: fileName,
				Err: fmt.Errorf("output %s does not match spatial shape of %s", out.DimensionsToString(), donor.DimensionsToString())}
		}
		out.GeoTransform = donor.GeoTransform
		out.Projection = donor.Projection
	}
	if err := d.Save(fileName, out); err != nil {
		os.Remove(fileName)
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			return err
		}
		return &IOError{Op: "write", Path: fileName, Err: err}
	}
	return nil
}
