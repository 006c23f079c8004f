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

// Package fitsimage implements a minimal FITS primary-HDU reader/writer
// for 2D single-precision images with optional WCS header keys.
// Spec: https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
package fitsimage

import (
	"fmt"
	"strings"
	"time"

	"github.com/278261631/local-kats-sub000/internal/stats"
)

// Image is a single 2D FITS primary HDU loaded into memory.
type Image struct {
	ID       int    // sequential id for log output
	FileName string // original file name, if any

	Header Header // all header keys, values, comments, history

	Bitpix int32   // bits per pixel from the header; positive integral, negative floating
	Bzero  float32 // true pixel value is Bzero + Bscale*Data[i]
	Bscale float32

	Naxisn []int32 // axis dimensions, fastest-varying first (x, y)
	Pixels int32   // product of Naxisn

	Data []float32 // image data, row-major, length==Pixels

	Exposure float32 // exposure in seconds

	Stats *stats.Stats // cached basic statistics

	planeStride int32 // number of trailing-axis planes collapsed by Load, for diagnostics only
}

// Header holds FITS header cards grouped by value type, mirroring the
// card types the FITS standard allows.
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float64
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// NewHeader returns a header with all maps initialized.
func NewHeader() Header {
	return Header{
		Bools:   make(map[string]bool),
		Ints:    make(map[string]int32),
		Floats:  make(map[string]float64),
		Strings: make(map[string]string),
		Dates:   make(map[string]string),
	}
}

const fitsBlockSize = 2880
const headerLineSize = 80

// NewImage returns an image with an empty header.
func NewImage() *Image {
	return &Image{Header: NewHeader(), Bscale: 1}
}

// NewImageFromNaxisn allocates an image of the given shape. data is used
// directly if non-nil, else a zeroed buffer is allocated. naxisn is copied.
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, n := range naxisn {
		numPixels *= n
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...),
		Pixels: numPixels,
		Data:   data,
		Stats:  stats.NewStats(data, naxisn[0]),
	}
}

// NewImageLike allocates a new image with the same shape and header as src
// but a fresh, zeroed data buffer.
func NewImageLike(src *Image) *Image {
	data := make([]float32, src.Pixels)
	return &Image{
		ID:       src.ID,
		FileName: src.FileName,
		Header:   src.Header,
		Bitpix:   -32,
		Bzero:    0,
		Bscale:   1,
		Naxisn:   append([]int32(nil), src.Naxisn...),
		Pixels:   src.Pixels,
		Data:     data,
		Exposure: src.Exposure,
		Stats:    stats.NewStats(data, src.Naxisn[0]),
	}
}

// Width returns the number of columns (NAXIS1).
func (f *Image) Width() int32 {
	if len(f.Naxisn) < 1 {
		return 0
	}
	return f.Naxisn[0]
}

// Height returns the number of rows (NAXIS2).
func (f *Image) Height() int32 {
	if len(f.Naxisn) < 2 {
		return 0
	}
	return f.Naxisn[1]
}

// At returns the pixel value at column x, row y.
func (f *Image) At(x, y int32) float32 {
	return f.Data[y*f.Width()+x]
}

// Set assigns the pixel value at column x, row y.
func (f *Image) Set(x, y int32, v float32) {
	f.Data[y*f.Width()+x] = v
}

// DimensionsToString renders the axis shape as e.g. "1024x768".
func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// AppendHistory adds a HISTORY card describing a producing step.
func (f *Image) AppendHistory(format string, args ...interface{}) {
	f.Header.History = append(f.Header.History, fmt.Sprintf(format, args...))
}

// AppendHistoryTimestamped adds a HISTORY card prefixed with the current time.
func (f *Image) AppendHistoryTimestamped(format string, args ...interface{}) {
	f.AppendHistory("%s %s", time.Now().UTC().Format("2006-01-02T15:04:05"), fmt.Sprintf(format, args...))
}

// HasWCS reports whether the header carries a usable celestial WCS:
// CRVAL1/2, CRPIX1/2 and either CD1_1 or CDELT1 (CROTA2 and CDELT2 are
// optional).
func (h *Header) HasWCS() bool {
	_, okRA := h.Floats["CRVAL1"]
	_, okDec := h.Floats["CRVAL2"]
	_, okPX := h.Floats["CRPIX1"]
	_, okPY := h.Floats["CRPIX2"]
	if !okRA || !okDec || !okPX || !okPY {
		return false
	}
	_, hasCD := h.Floats["CD1_1"]
	_, hasCDELT := h.Floats["CDELT1"]
	return hasCD || hasCDELT
}

// Float returns a float header value and whether it was present.
func (h *Header) Float(key string) (float64, bool) {
	v, ok := h.Floats[key]
	return v, ok
}

// FloatOr returns a float header value or a default if absent.
func (h *Header) FloatOr(key string, def float64) float64 {
	if v, ok := h.Floats[key]; ok {
		return v
	}
	return def
}

// SetFloat sets a float header card.
func (h *Header) SetFloat(key string, v float64) {
	h.Floats[key] = v
}

// EqualInt32Slice reports whether a and b contain the same elements; nil
// is treated as equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
