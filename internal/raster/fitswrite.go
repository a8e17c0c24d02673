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
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Writes the cube to a FITS file with the given name, gzip compressed if the name ends in .gz or .gzip.
// Creates or truncates the file.
func (FITSDriver) Save(fileName string, c *Cube) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &IOError{Op: "create", Path: fileName, Err: err}
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if isGzipName(fileName) {
		gz = gzip.NewWriter(bw)
		w = gz
	}
	if err := WriteFITS(w, c); err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Writes the cube as a FITS primary array to an io.Writer
func WriteFITS(w io.Writer, c *Cube) error {
	bitpix := map[DType]int32{Byte: 8, Int16: 16, Float32: -32}[c.DType]

	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt(&sb, "BITPIX", int64(bitpix), "Bits per value")
	naxis := 3
	if c.Depth == 1 {
		naxis = 2
	}
	writeInt(&sb, "NAXIS", int64(naxis), "Number of axes")
	writeInt(&sb, "NAXIS1", int64(c.Width), "Width")
	writeInt(&sb, "NAXIS2", int64(c.Height), "Height")
	if naxis == 3 {
		writeInt(&sb, "NAXIS3", int64(c.Depth), "Bands")
	}
	if c.DType == Int16 && c.NoData == math.Trunc(c.NoData) && c.NoData >= math.MinInt16 && c.NoData <= math.MaxInt16 {
		writeInt(&sb, "BLANK", int64(c.NoData), "Nodata value")
	}
	writeFloat64(&sb, "NODATA", c.NoData, "Nodata value")
	for i, v := range c.GeoTransform {
		writeFloat64(&sb, fmt.Sprintf("GEOTRAN%d", i+1), v, "Affine geotransform")
	}
	writeLongString(&sb, "CRS", c.Projection)
	writeEnd(&sb)
	padBlock(&sb, ' ')

	// Write header block(s)
	if _, err := w.Write([]byte(sb.String())); err != nil {
		return err
	}

	// Write payload data and pad the last block with zeros
	n, err := writeData(w, c)
	if err != nil {
		return err
	}
	if rest := n % fitsBlockSize; rest > 0 {
		_, err = w.Write(make([]byte, fitsBlockSize-rest))
	}
	return err
}

// Pads the header to a full block
func padBlock(sb *strings.Builder, pad rune) {
	if bytesInBlock := sb.Len() % fitsBlockSize; bytesInBlock > 0 {
		sb.WriteString(strings.Repeat(string(pad), fitsBlockSize-bytesInBlock))
	}
}

// Writes a header card with the value right-aligned in columns 11-30, exactly 80 characters
func writeCard(w io.Writer, key, value, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	line := fmt.Sprintf("%-8s= %20s / %s", key, value, comment)
	if len(line) > headerLineSize {
		line = line[:headerLineSize]
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	writeCard(w, key, v, comment)
}

// Writes a FITS header integer value
func writeInt(w io.Writer, key string, value int64, comment string) {
	writeCard(w, key, fmt.Sprintf("%d", value), comment)
}

// Writes a FITS header float64 value. Always carries a decimal point so it reads back as a float
func writeFloat64(w io.Writer, key string, value float64, comment string) {
	writeCard(w, key, fmt.Sprintf("%.13E", value), comment)
}

// Writes a long string over numbered keys prefix00001, prefix00002, ...
// Each card holds up to 34 characters so the quote-escaped value always fits.
func writeLongString(w io.Writer, prefix, value string) {
	const chunk = 34
	for i := 1; len(value) > 0; i++ {
		part := value
		if len(part) > chunk {
			part = part[:chunk]
		}
		for len(part) > 1 && part[len(part)-1] == ' ' { // trailing blanks are not significant in FITS strings
			part = part[:len(part)-1]
		}
		value = value[len(part):]
		escaped := strings.ReplaceAll(part, "'", "''")
		fmt.Fprintf(w, "%-80s", fmt.Sprintf("%s%05d= '%s'", prefix, i, escaped))
	}
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", headerLineSize-3))
}

// Writes the cube values in band-sequential order and network byte order,
// converted to the cube data type. Returns the number of bytes written
func writeData(w io.Writer, c *Cube) (int, error) {
	bytesPerValue := map[DType]int{Byte: 1, Int16: 2, Float32: 4}[c.DType]
	buf := make([]byte, bufLen-bufLen%bytesPerValue)
	plane := c.Height * c.Width
	total := plane * c.Depth
	written := 0

	o := 0
	for index := 0; index < total; index++ {
		band, pixel := index/plane, index%plane
		v := c.DType.Clamp(float64(c.Data[pixel*c.Depth+band]), c.NoData)
		switch c.DType {
		case Byte:
			buf[o] = byte(v)
		case Int16:
			val := uint16(int16(v))
			buf[o], buf[o+1] = byte(val>>8), byte(val)
		default:
			val := math.Float32bits(float32(v))
			buf[o], buf[o+1], buf[o+2], buf[o+3] = byte(val>>24), byte(val>>16), byte(val>>8), byte(val)
		}
		o += bytesPerValue
		if o == len(buf) || index == total-1 {
			n, err := w.Write(buf[:o])
			written += n
			if err != nil {
				return written, err
			}
			o = 0
		}
	}
	return written, nil
}
