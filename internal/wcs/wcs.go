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

// Package wcs implements the World Coordinate System used by FITS headers to
// map pixel coordinates onto celestial coordinates, as a linear mapping
// through the CD matrix (or the legacy CROTA2/CDELT form); no tangent-plane
// projection is applied.
package wcs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Coordinate is an ICRS equatorial sky position in degrees.
type Coordinate struct {
	RA  float64
	Dec float64
}

// WCS is a linear pixel<->sky mapping anchored at a reference pixel.
type WCS struct {
	CRPIX1, CRPIX2 float64
	CRVAL1, CRVAL2 float64
	CD1_1, CD1_2   float64
	CD2_1, CD2_2   float64
}

// FromHeaderValues builds a WCS from FITS header float values, preferring a
// full CD matrix and falling back to CROTA2+CDELT1/2 when CD1_1 is absent.
func FromHeaderValues(get func(key string) (float64, bool)) (WCS, error) {
	crpix1, ok1 := get("CRPIX1")
	crpix2, ok2 := get("CRPIX2")
	crval1, ok3 := get("CRVAL1")
	crval2, ok4 := get("CRVAL2")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return WCS{}, fmt.Errorf("wcs: missing CRPIX1/2 or CRVAL1/2")
	}

	w := WCS{CRPIX1: crpix1, CRPIX2: crpix2, CRVAL1: crval1, CRVAL2: crval2}

	if cd11, ok := get("CD1_1"); ok {
		cd12, _ := get("CD1_2")
		cd21, _ := get("CD2_1")
		cd22, _ := get("CD2_2")
		w.CD1_1, w.CD1_2, w.CD2_1, w.CD2_2 = cd11, cd12, cd21, cd22
		return w, nil
	}

	cdelt1, ok := get("CDELT1")
	if !ok {
		return WCS{}, fmt.Errorf("wcs: missing CD1_1 and CDELT1")
	}
	cdelt2, ok2 := get("CDELT2")
	if !ok2 {
		cdelt2 = cdelt1
	}
	crota2, _ := get("CROTA2")
	sinr, cosr := math.Sincos(crota2 * math.Pi / 180)
	w.CD1_1 = cdelt1 * cosr
	w.CD1_2 = -cdelt2 * sinr
	w.CD2_1 = cdelt1 * sinr
	w.CD2_2 = cdelt2 * cosr
	return w, nil
}

// PixelToSky maps a pixel coordinate (1-based, FITS convention) to an ICRS
// equatorial coordinate.
func (w *WCS) PixelToSky(x, y float64) Coordinate {
	return Coordinate{
		RA:  w.CRVAL1 + w.CD1_1*(x-w.CRPIX1) + w.CD1_2*(y-w.CRPIX2),
		Dec: w.CRVAL2 + w.CD2_1*(x-w.CRPIX1) + w.CD2_2*(y-w.CRPIX2),
	}
}

// SkyToPixel inverts PixelToSky via the 2x2 CD matrix, returning an error
// if the CD matrix is singular.
func (w *WCS) SkyToPixel(c Coordinate) (x, y float64, err error) {
	cd := mat.NewDense(2, 2, []float64{w.CD1_1, w.CD1_2, w.CD2_1, w.CD2_2})
	det := mat.Det(cd)
	if math.Abs(det) < 1e-15 {
		return 0, 0, fmt.Errorf("wcs: singular CD matrix")
	}
	var inv mat.Dense
	if err := inv.Inverse(cd); err != nil {
		return 0, 0, fmt.Errorf("wcs: %w", err)
	}
	dRA := c.RA - w.CRVAL1
	dDec := c.Dec - w.CRVAL2
	dx := inv.At(0, 0)*dRA + inv.At(0, 1)*dDec
	dy := inv.At(1, 0)*dRA + inv.At(1, 1)*dDec
	return w.CRPIX1 + dx, w.CRPIX2 + dy, nil
}

// AngularSeparation returns the great-circle distance between two ICRS
// coordinates in degrees, via the haversine formula.
func AngularSeparation(a, b Coordinate) float64 {
	ra1, dec1 := a.RA*math.Pi/180, a.Dec*math.Pi/180
	ra2, dec2 := b.RA*math.Pi/180, b.Dec*math.Pi/180
	dRA := ra2 - ra1
	dDec := dec2 - dec1
	sinDec := math.Sin(dDec / 2)
	sinRA := math.Sin(dRA / 2)
	h := sinDec*sinDec + math.Cos(dec1)*math.Cos(dec2)*sinRA*sinRA
	return 2 * math.Asin(math.Sqrt(h)) * 180 / math.Pi
}
