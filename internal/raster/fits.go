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
	"regexp"
	"strconv"
	"strings"
)

// Raster cubes stored as FITS primary arrays.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
//
// NAXIS1 is the width, NAXIS2 the height and NAXIS3 the depth. The
// georeference travels in the float keys GEOTRAN1..GEOTRAN6, the projection
// in the string keys CRS00001, CRS00002, ... which are concatenated on read.
type FITSDriver struct{}

func init() { SetDriver(FITSDriver{}) } // register ahead of catch-all drivers

func (FITSDriver) Name() string { return "FITS" }

func (FITSDriver) Accepts(fileName string) bool {
	lower := strings.ToLower(fileName)
	for _, suffix := range []string{".fits", ".fit", ".fts"} {
		if strings.HasSuffix(lower, suffix) || strings.HasSuffix(lower, suffix+".gz") || strings.HasSuffix(lower, suffix+".gzip") {
			return true
		}
	}
	return false
}

func isGzipName(fileName string) bool {
	lower := strings.ToLower(fileName)
	return strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".gzip")
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const headerLineSize int = 80   // Line size of a FITS header

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int64
	Floats   map[string]float64
	Strings  map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int64),
		Floats:   make(map[string]float64),
		Strings:  make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
	}
}

// Returns the value for an integer or float key
func (h *Header) Number(key string) (float64, bool) {
	if v, ok := h.Ints[key]; ok {
		return float64(v), true
	}
	if v, ok := h.Floats[key]; ok {
		return v, true
	}
	return 0, false
}

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

func (FITSDriver) Load(fileName string, logWriter io.Writer) (*Cube, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, &IOError{Op: "open", Path: fileName, Err: err}
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if isGzipName(fileName) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, &IOError{Op: "open", Path: fileName, Err: err}
		}
		defer gz.Close()
		r = gz
	}
	c, err := ReadFITS(r, logWriter)
	if err != nil {
		return nil, &IOError{Op: "read", Path: fileName, Err: err}
	}
	fmt.Fprintf(logWriter, "Read %s FITS cube with %s values from %s\n", c.DimensionsToString(), c.DType, fileName)
	return c, nil
}

// Reads a FITS primary array from the reader into a cube
func ReadFITS(r io.Reader, logWriter io.Writer) (*Cube, error) {
	h := NewHeader()
	if err := h.read(r, logWriter); err != nil {
		return nil, err
	}

	// check mandatory fields as per standard
	if !h.Bools["SIMPLE"] {
		return nil, fmt.Errorf("not a valid FITS file; SIMPLE=T missing in header")
	}
	bitpix, ok := h.Ints["BITPIX"]
	if !ok {
		return nil, fmt.Errorf("FITS header does not contain key BITPIX")
	}
	naxis, ok := h.Ints["NAXIS"]
	if !ok || naxis < 2 || naxis > 3 {
		return nil, fmt.Errorf("FITS NAXIS=%d, need 2 or 3 axes", naxis)
	}
	naxisn := []int{1, 1, 1}
	for i := 1; i <= int(naxis); i++ {
		v, ok := h.Ints["NAXIS"+strconv.Itoa(i)]
		if !ok {
			return nil, fmt.Errorf("FITS header does not contain key NAXIS%d", i)
		}
		naxisn[i-1] = int(v)
	}
	width, height, depth := naxisn[0], naxisn[1], naxisn[2]

	c, err := NewCube(height, width, depth, nil)
	if err != nil {
		return nil, err
	}

	bzero, ok := h.Number("BZERO")
	if !ok {
		bzero = 0
	}
	bscale, ok := h.Number("BSCALE")
	if !ok {
		bscale = 1
	}

	switch bitpix {
	case 8:
		c.DType = Byte
	case 16:
		c.DType = Int16
	case -32:
		c.DType = Float32
	case 32, -64:
		fmt.Fprintf(logWriter, "Warning: loss of precision converting BITPIX %d to float32 values\n", bitpix)
		c.DType = Float32
	default:
		return nil, fmt.Errorf("unknown BITPIX value %d", bitpix)
	}

	if v, ok := h.Number("NODATA"); ok {
		c.NoData, c.HasNoData = v, true
	} else if v, ok := h.Ints["BLANK"]; ok {
		c.NoData, c.HasNoData = float64(v)*bscale+bzero, true
	}
	for i := 0; i < 6; i++ {
		if v, ok := h.Number(fmt.Sprintf("GEOTRAN%d", i+1)); ok {
			c.GeoTransform[i] = v
		}
	}
	c.Projection = h.joinStrings("CRS")

	if err := readFITSData(r, c, int(bitpix), bzero, bscale); err != nil {
		return nil, err
	}
	return c, nil
}

// Concatenates the values of string keys prefix00001, prefix00002, ... until the first missing key
func (h *Header) joinStrings(prefix string) string {
	sb := strings.Builder{}
	for i := 1; ; i++ {
		v, ok := h.Strings[fmt.Sprintf("%s%05d", prefix, i)]
		if !ok {
			break
		}
		sb.WriteString(v)
	}
	return sb.String()
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Batched read of the data unit, converting from network byte order and band-sequential
// FITS order into the (row, col, band) cube layout, applying bzero and bscale
func readFITSData(r io.Reader, c *Cube, bitpix int, bzero, bscale float64) error {
	bytesPerValue := bitpix / 8
	if bytesPerValue < 0 {
		bytesPerValue = -bytesPerValue
	}
	decode := decoderFor(bitpix)
	plane := c.Height * c.Width
	total := plane * c.Depth
	buf := make([]byte, bufLen-bufLen%bytesPerValue)

	for index := 0; index < total; {
		bytesToRead := (total - index) * bytesPerValue
		if bytesToRead > len(buf) {
			bytesToRead = len(buf)
		}
		if _, err := io.ReadFull(r, buf[:bytesToRead]); err != nil {
			return fmt.Errorf("reading FITS data at value %d of %d: %w", index, total, err)
		}
		for i := 0; i < bytesToRead; i += bytesPerValue {
			band, pixel := index/plane, index%plane
			c.Data[pixel*c.Depth+band] = float32(decode(buf[i:])*bscale + bzero)
			index++
		}
	}
	return nil
}

// Returns a decoder from big-endian bytes for the given BITPIX
func decoderFor(bitpix int) func(b []byte) float64 {
	switch bitpix {
	case 8:
		return func(b []byte) float64 { return float64(b[0]) }
	case 16:
		return func(b []byte) float64 { return float64(int16(uint16(b[0])<<8 | uint16(b[1]))) }
	case 32:
		return func(b []byte) float64 {
			return float64(int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])))
		}
	case -32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])))
		}
	default: // -64
		return func(b []byte) float64 {
			bits := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
				uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
			return math.Float64frombits(bits)
		}
	}
}

func (h *Header) read(r io.Reader, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil {
			return fmt.Errorf("reading FITS header: %w", err)
		}
		h.Length += bytesRead

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/headerLineSize && !h.End; lineNo++ {
			line := buf[lineNo*headerLineSize : (lineNo+1)*headerLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "Warning: cannot parse FITS header line '%s', ignoring\n", string(line))
			} else {
				h.readLine(reParser.SubexpNames(), subValues, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		switch c := subNames[i][0]; c {
		case 'E': // end line
			h.End = true
		case 'H': // history line
			h.History = append(h.History, string(subValues[i]))
		case 'C': // comment line
			h.Comments = append(h.Comments, string(subValues[i]))
		case 'k': // key
			key = string(subValues[i])
		case 'b': // boolean
			if len(subValues[i]) > 0 {
				v := subValues[i][0]
				h.Bools[key] = v == 't' || v == 'T'
			}
		case 'i': // int
			if val, err := strconv.ParseInt(string(subValues[i]), 10, 64); err == nil {
				h.Ints[key] = val
			}
		case 'f': // float, FITS allows D exponents
			s := strings.Replace(string(subValues[i]), "D", "E", 1)
			if val, err := strconv.ParseFloat(s, 64); err == nil {
				h.Floats[key] = val
			}
		case 's': // string, '' escapes a quote
			h.Strings[key] = strings.TrimRight(strings.ReplaceAll(string(subValues[i]), "''", "'"), " ")
		case 'c': // value comment, ignored
		default:
			fmt.Fprintf(logWriter, "%d: Warning: unknown FITS token '%s'\n", lineNo, string(c))
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	rest := ".*"
	histLine := "HISTORY" + white + "(?P<H>" + rest + ")"
	commLine := "COMMENT" + white + "(?P<C>" + rest + ")"
	endLine := "(?P<E>END)" + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?(?:[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?|[0-9]+[ED][-+]?[0-9]+|NaN|[+-]?Inf))"
	stri := "'(?P<s>(?:[^']|'')*)'"
	val := "(?:" + boo + "|" + floa + "|" + inte + "|" + stri + ")"

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
