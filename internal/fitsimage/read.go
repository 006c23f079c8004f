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

package fitsimage

import (
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/278261631/local-kats-sub000/internal/stats"
)

var reParser = compileHeaderRE()

// Load reads a FITS primary HDU from path. 3D data (NAXIS=3) is reduced
// to 2D by keeping only the first plane, per the contract that ImageIO
// always coerces to a 2D image. Never mutates the source file: it is
// opened read-only and closed before returning.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fits load %s: %w", path, err)
	}
	defer f.Close()

	img := NewImage()
	img.FileName = path
	if err := img.read(f, path); err != nil {
		return nil, err
	}
	return img, nil
}

// LoadHeaderOnly reads only the header, skipping pixel data, for fast
// WCS-presence probing.
func LoadHeaderOnly(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fits load header %s: %w", path, err)
	}
	defer f.Close()

	img := NewImage()
	img.FileName = path
	if err := img.Header.read(f, path); err != nil {
		return nil, err
	}
	if err := img.parseMandatoryKeys(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) read(r io.Reader, path string) error {
	lExt := strings.ToLower(filepathExt(path))
	var reader io.Reader = r
	if lExt == ".gz" || lExt == ".gzip" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("fits gzip %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	if err := img.Header.read(reader, path); err != nil {
		return err
	}
	if err := img.parseMandatoryKeys(); err != nil {
		return err
	}
	return img.readData(reader)
}

func filepathExt(p string) string {
	return path.Ext(p)
}

func (img *Image) popInt32(key string) (int32, error) {
	if v, ok := img.Header.Ints[key]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("fits header missing key %s", key)
}

func (img *Image) popFloatOrInt(key string) (float64, bool) {
	if v, ok := img.Header.Floats[key]; ok {
		return v, true
	}
	if v, ok := img.Header.Ints[key]; ok {
		return float64(v), true
	}
	return 0, false
}

func (img *Image) parseMandatoryKeys() error {
	if !img.Header.Bools["SIMPLE"] {
		return fmt.Errorf("fits file %s: SIMPLE=T missing in header", img.FileName)
	}
	bitpix, err := img.popInt32("BITPIX")
	if err != nil {
		return err
	}
	img.Bitpix = bitpix

	naxis, err := img.popInt32("NAXIS")
	if err != nil {
		return err
	}

	naxisn := make([]int32, naxis)
	for i := int32(1); i <= naxis; i++ {
		n, err := img.popInt32("NAXIS" + strconv.FormatInt(int64(i), 10))
		if err != nil {
			return err
		}
		naxisn[i-1] = n
	}

	// coerce 3D (or higher) to 2D by keeping only the first plane
	if len(naxisn) > 2 {
		img.planeStride = int32(1)
		for _, n := range naxisn[2:] {
			img.planeStride *= n
		}
		naxisn = naxisn[:2]
	} else {
		img.planeStride = 1
	}
	img.Naxisn = naxisn
	pixels := int32(1)
	for _, n := range naxisn {
		pixels *= n
	}
	img.Pixels = pixels

	if v, ok := img.popFloatOrInt("BZERO"); ok {
		img.Bzero = float32(v)
	} else {
		img.Bzero = 0
	}
	if v, ok := img.popFloatOrInt("BSCALE"); ok {
		img.Bscale = float32(v)
	} else {
		img.Bscale = 1
	}
	if v, ok := img.popFloatOrInt("EXPOSURE"); ok {
		img.Exposure = float32(v)
	} else if v, ok := img.popFloatOrInt("EXPTIME"); ok {
		img.Exposure = float32(v)
	}
	return nil
}

const bufLen = 16 * 1024

// readData reads the first plane of the primary data unit, converting to
// float32 and applying BZERO/BSCALE. planeStride*Pixels bytes may remain
// in the reader afterward (ignored; we never read further planes).
func (img *Image) readData(r io.Reader) error {
	switch img.Bitpix {
	case 8:
		return img.readIntNData(r, 1, func(b []byte) int64 { return int64(b[0]) })
	case 16:
		return img.readIntNData(r, 2, func(b []byte) int64 {
			return int64(int16((uint16(b[0]) << 8) | uint16(b[1])))
		})
	case 32:
		return img.readIntNData(r, 4, func(b []byte) int64 {
			return int64(int32((uint32(b[0]) << 24) | (uint32(b[1]) << 16) | (uint32(b[2]) << 8) | uint32(b[3])))
		})
	case 64:
		return img.readIntNData(r, 8, func(b []byte) int64 {
			return int64((uint64(b[0]) << 56) | (uint64(b[1]) << 48) | (uint64(b[2]) << 40) | (uint64(b[3]) << 32) |
				(uint64(b[4]) << 24) | (uint64(b[5]) << 16) | (uint64(b[6]) << 8) | uint64(b[7]))
		})
	case -32:
		return img.readFloatNData(r, 4, func(b []byte) float64 {
			bits := (uint32(b[0]) << 24) | (uint32(b[1]) << 16) | (uint32(b[2]) << 8) | uint32(b[3])
			return float64(math.Float32frombits(bits))
		})
	case -64:
		return img.readFloatNData(r, 8, func(b []byte) float64 {
			bits := (uint64(b[0]) << 56) | (uint64(b[1]) << 48) | (uint64(b[2]) << 40) | (uint64(b[3]) << 32) |
				(uint64(b[4]) << 24) | (uint64(b[5]) << 16) | (uint64(b[6]) << 8) | uint64(b[7])
			return math.Float64frombits(bits)
		})
	default:
		return fmt.Errorf("fits file %s: unknown BITPIX value %d", img.FileName, img.Bitpix)
	}
}

func (img *Image) readIntNData(r io.Reader, width int, decode func([]byte) int64) error {
	min, max, sum := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	img.Data = make([]float32, int(img.Pixels))
	buf := make([]byte, bufLen)

	dataIndex := 0
	leftover := 0
	for dataIndex < len(img.Data) {
		want := (len(img.Data)-dataIndex)*width - leftover
		if want > bufLen {
			want = bufLen
		}
		n, err := r.Read(buf[leftover : leftover+want])
		if err != nil {
			return fmt.Errorf("fits file %s: %w", img.FileName, err)
		}
		avail := leftover + n
		usable := avail - avail%width
		for i := 0; i < usable; i += width {
			v := float32(decode(buf[i:i+width]))*img.Bscale + img.Bzero
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += float64(v)
			img.Data[dataIndex+i/width] = v
		}
		dataIndex += usable / width
		leftover = avail - usable
		copy(buf[:leftover], buf[usable:avail])
	}
	img.Bzero, img.Bscale = 0, 1
	mean := float32(sum / float64(len(img.Data)))
	img.Stats = stats.NewStatsWithMMM(img.Data, img.Naxisn[0], min, max, mean)
	return nil
}

func (img *Image) readFloatNData(r io.Reader, width int, decode func([]byte) float64) error {
	min, max, sum := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	img.Data = make([]float32, int(img.Pixels))
	buf := make([]byte, bufLen)

	dataIndex := 0
	leftover := 0
	for dataIndex < len(img.Data) {
		want := (len(img.Data)-dataIndex)*width - leftover
		if want > bufLen {
			want = bufLen
		}
		n, err := r.Read(buf[leftover : leftover+want])
		if err != nil {
			return fmt.Errorf("fits file %s: %w", img.FileName, err)
		}
		avail := leftover + n
		usable := avail - avail%width
		for i := 0; i < usable; i += width {
			v := float32(decode(buf[i:i+width]))*img.Bscale + img.Bzero
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += float64(v)
			img.Data[dataIndex+i/width] = v
		}
		dataIndex += usable / width
		leftover = avail - usable
		copy(buf[:leftover], buf[usable:avail])
	}
	img.Bzero, img.Bscale = 0, 1
	mean := float32(sum / float64(len(img.Data)))
	img.Stats = stats.NewStatsWithMMM(img.Data, img.Naxisn[0], min, max, mean)
	return nil
}

func (h *Header) read(r io.Reader, path string) error {
	buf := make([]byte, fitsBlockSize)
	for h.Length = 0; !h.End; {
		n, err := io.ReadFull(r, buf)
		if err != nil || n != fitsBlockSize {
			return fmt.Errorf("fits header %s: %w", path, err)
		}
		h.Length += int32(n)
		for lineNo := 0; lineNo < fitsBlockSize/headerLineSize && !h.End; lineNo++ {
			line := buf[lineNo*headerLineSize : (lineNo+1)*headerLineSize]
			sub := reParser.FindSubmatch(line)
			if sub == nil {
				continue
			}
			h.readLine(reParser.SubexpNames(), sub)
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte) {
	key := ""
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		switch subNames[i][0] {
		case 'E':
			h.End = true
		case 'H':
			h.History = append(h.History, string(subValues[i]))
		case 'C':
			h.Comments = append(h.Comments, string(subValues[i]))
		case 'k':
			key = string(subValues[i])
		case 'b':
			if len(subValues[i]) > 0 {
				v := subValues[i][0]
				h.Bools[key] = v == 't' || v == 'T'
			}
		case 'i':
			if v, err := strconv.ParseInt(string(subValues[i]), 10, 64); err == nil {
				h.Ints[key] = int32(v)
			}
		case 'f':
			if v, err := strconv.ParseFloat(string(subValues[i]), 64); err == nil {
				h.Floats[key] = v
			}
		case 's':
			h.Strings[key] = string(subValues[i])
		case 'd':
			h.Dates[key] = string(subValues[i])
		}
	}
}

// compileHeaderRE builds the regexp parser for FITS 80-column header cards.
func compileHeaderRE() *regexp.Regexp {
	white := `\s+`
	whiteOpt := `\s*`
	hist := "HISTORY" + white + "(?P<H>.*)"
	comm := "COMMENT" + white + "(?P<C>.*)"
	end := "(?P<E>END)" + whiteOpt
	key := "(?P<k>[A-Z0-9_-]+)"
	boo := "(?P<b>[TF])"
	inte := `(?P<i>[+-]?[0-9]+)`
	floa := `(?P<f>[+-]?[0-9]*\.[0-9]*(?:[ED][-+]?[0-9]+)?)`
	stri := `'(?P<s>[^']*)'`
	date := `(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)`
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"
	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + "=" + whiteOpt + val + whiteOpt + commOpt
	lineRe := "^(?:" + white + "|" + hist + "|" + comm + "|" + keyLine + "|" + end + ")$"
	return regexp.MustCompile(lineRe)
}
