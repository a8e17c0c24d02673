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
	"io"
	"math"
)

// Stacks the first band of each input file into one Int16 cube, in the order given.
// Values are multiplied by scale and truncated; NaNs and source nodata become DefaultNoData.
// All inputs must share the spatial shape of the first one, whose georeference is kept.
func Stack(fileNames []string, scale float64, logWriter io.Writer) (*Cube, error) {
	if len(fileNames) == 0 {
		return nil, fmt.Errorf("nothing to stack")
	}
	var out *Cube
	for i, fileName := range fileNames {
		in, err := Load(fileName, logWriter)
		if err != nil {
			return nil, err
		}
		if out == nil {
			if out, err = NewCubeLike(in, len(fileNames), nil); err != nil {
				return nil, err
			}
			out.DType, out.NoData, out.HasNoData = Int16, DefaultNoData, true
		} else if in.Height != out.Height || in.Width != out.Width {
			return nil, fmt.Errorf("%d: %s has shape %s, want %dx%d", i, fileName, in.DimensionsToString(), out.Height, out.Width)
		}
		plane := in.Band(0)
		for j, v := range plane {
			if v != v || (in.HasNoData && float64(v) == in.NoData) {
				plane[j] = DefaultNoData
			} else {
				plane[j] = float32(Int16.Clamp(math.Trunc(float64(v)*scale), DefaultNoData))
			}
		}
		out.SetBand(i, plane)
		fmt.Fprintf(logWriter, "%d: Stacked %s from %s\n", i, in.DimensionsToString(), fileName)
	}
	return out, nil
}

// Splits a cube along the band axis into bands [0,at) and [at,depth)
func Split(c *Cube, at int) (first, second *Cube, err error) {
	if at <= 0 || at >= c.Depth {
		return nil, nil, fmt.Errorf("split band %d outside 1..%d", at, c.Depth-1)
	}
	if first, err = NewCubeLike(c, at, nil); err != nil {
		return nil, nil, err
	}
	if second, err = NewCubeLike(c, c.Depth-at, nil); err != nil {
		return nil, nil, err
	}
	for _, part := range []*Cube{first, second} {
		part.DType, part.NoData, part.HasNoData = c.DType, c.NoData, c.HasNoData
	}
	for p := 0; p < c.Height*c.Width; p++ {
		series := c.Data[p*c.Depth : (p+1)*c.Depth]
		copy(first.Data[p*at:(p+1)*at], series[:at])
		copy(second.Data[p*second.Depth:(p+1)*second.Depth], series[at:])
	}
	return first, second, nil
}
