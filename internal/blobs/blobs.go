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

// Package blobs detects compact signal regions in a stretched difference
// image: binary thresholding, morphological cleanup, contour tracing, shape
// filtering and a composite quality ranking.
package blobs

import (
	"math"
	"sort"

	"github.com/278261631/local-kats-sub000/internal/geom"
	"github.com/278261631/local-kats-sub000/internal/stats"
)

// Params controls detection and filtering.
type Params struct {
	MinArea           float32
	MaxArea           float32
	MinCircularity    float32
	MaxJaggednessRatio float32
}

// DefaultParams mirrors the reference detector's defaults.
func DefaultParams() Params {
	return Params{MinArea: 2, MaxArea: 36, MinCircularity: 0.79, MaxJaggednessRatio: 1.2}
}

// Candidate is a single detected signal region.
type Candidate struct {
	X, Y                   float32
	Area                   int32
	Circularity            float32
	Jaggedness             float32
	MeanSignal, MaxSignal  float32
	SNR, AlignedSNR        float32
	QualityScore           float32
	Contour                []geom.Point2D
}

// alignedApertureRadius is the half-width of the square aperture AlignedSNR
// is measured over, giving a 7x7 window centered on each candidate.
const alignedApertureRadius = 3

// Detect finds candidate point sources in stretched (normalized to [0,1],
// row width width) by thresholding above threshold, cleaning the resulting
// mask with a 3x3 ellipse open/close, tracing contours and filtering them by
// shape. aligned is the aligned observation frame stretched was derived
// from, same dimensions as stretched; it backs the 7x7-aperture AlignedSNR
// reported alongside each candidate. The background statistics used for SNR
// are computed from pixels outside the cleaned mask.
func Detect(stretched, aligned []float32, width int32, threshold float32, p Params) ([]Candidate, error) {
	height := int32(len(stretched)) / width
	mask := make([]bool, len(stretched))
	for i, v := range stretched {
		if v > threshold {
			mask[i] = true
		}
	}

	cleaned := morphOpen(mask, width, height)
	cleaned = morphClose(cleaned, width, height)

	bgMedian, bgSigma := backgroundStats(stretched, cleaned)
	alignedBgMedian, alignedBgSigma := backgroundStats(aligned, cleaned)

	contours, labels := traceContours(cleaned, width, height)

	candidates := make([]Candidate, 0, len(contours))
	for ci, contour := range contours {
		area := int32(0)
		for _, l := range labels {
			if l == int32(ci+1) {
				area++
			}
		}
		if float32(area) < p.MinArea || float32(area) > p.MaxArea {
			continue
		}

		perimeter := contourPerimeter(contour)
		if perimeter == 0 {
			continue
		}
		circularity := float32(4*math.Pi) * float32(area) / (perimeter * perimeter)
		if circularity < p.MinCircularity {
			continue
		}

		hull := convexHull(contour)
		poly := approxPolyDP(contour, 0.01*perimeter)
		jaggedness := float32(0)
		if len(hull) > 0 {
			jaggedness = float32(len(poly)) / float32(len(hull))
		}
		if jaggedness > p.MaxJaggednessRatio {
			continue
		}

		cx, cy, ok := centroid(labels, width, int32(ci+1))
		if !ok {
			continue
		}

		meanSig, maxSig := regionSignal(stretched, labels, int32(ci+1))
		snr := (meanSig - bgMedian) / (bgSigma + 1e-10)
		apertureMean := apertureSignal(aligned, width, height, cx, cy, alignedApertureRadius)
		alignedSNR := (apertureMean - alignedBgMedian) / (alignedBgSigma + 1e-10)

		candidates = append(candidates, Candidate{
			X: cx, Y: cy,
			Area:        area,
			Circularity: circularity,
			Jaggedness:  jaggedness,
			MeanSignal:  meanSig,
			MaxSignal:   maxSig,
			SNR:         snr,
			AlignedSNR:  alignedSNR,
			Contour:     contour,
		})
	}

	scoreCandidates(candidates, p)
	return candidates, nil
}

// scoreCandidates computes the composite quality score: circularity squared,
// weighted by a normalized area term, matching the reference ranking
// formula of (circularity^2) * 2000 * normalizedArea.
func scoreCandidates(candidates []Candidate, p Params) {
	span := p.MaxArea - p.MinArea
	if span < 1e-10 {
		span = 1e-10
	}
	for i := range candidates {
		c := &candidates[i]
		norm := (float32(c.Area) - p.MinArea) / span
		if norm < 0 {
			norm = 0
		}
		if norm > 1 {
			norm = 1
		}
		score := c.Circularity * c.Circularity * 2000 * norm
		if score > 2000 {
			score = 2000
		}
		c.QualityScore = score
	}
}

// Sort orders candidates by key ("quality_score"|"aligned_snr"|"snr"),
// descending, with a stable (x,y) tie-break.
func Sort(candidates []Candidate, key string) {
	less := func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		var av, bv float32
		switch key {
		case "snr":
			av, bv = a.SNR, b.SNR
		case "aligned_snr":
			av, bv = a.AlignedSNR, b.AlignedSNR
		default:
			av, bv = a.QualityScore, b.QualityScore
		}
		if av != bv {
			return av > bv
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	}
	sort.SliceStable(candidates, less)
}

// backgroundStats computes the median and MAD-derived sigma of stretched
// pixels that fall outside mask, the region excluded from signal detection.
func backgroundStats(stretched []float32, mask []bool) (median, sigma float32) {
	bg := make([]float32, 0, len(stretched))
	for i, v := range stretched {
		if !mask[i] {
			bg = append(bg, v)
		}
	}
	if len(bg) == 0 {
		bg = stretched
	}
	s := stats.NewStats(bg, 0)
	return s.Location(), s.Scale()
}

// regionSignal returns the mean and max of stretched pixels labeled id.
func regionSignal(stretched []float32, labels []int32, id int32) (mean, max float32) {
	sum := float32(0)
	n := 0
	for i, l := range labels {
		if l != id {
			continue
		}
		v := stretched[i]
		sum += v
		n++
		if v > max || n == 1 {
			max = v
		}
	}
	if n > 0 {
		mean = sum / float32(n)
	}
	return mean, max
}

// apertureSignal returns the mean of data over a square aperture of the
// given radius (a (2*radius+1)x(2*radius+1) window) centered on (cx,cy),
// clamped to the image bounds.
func apertureSignal(data []float32, width, height int32, cx, cy float32, radius int32) float32 {
	x0, y0 := int32(cx+0.5)-radius, int32(cy+0.5)-radius
	x1, y1 := x0+2*radius, y0+2*radius
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 >= width {
		x1 = width - 1
	}
	if y1 >= height {
		y1 = height - 1
	}
	sum := float32(0)
	n := 0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			sum += data[y*width+x]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}

// centroid returns the pixel-area centroid of the region labeled id.
func centroid(labels []int32, width, id int32) (cx, cy float32, ok bool) {
	var sumX, sumY float64
	n := 0
	for i, l := range labels {
		if l != id {
			continue
		}
		x, y := int32(i)%width, int32(i)/width
		sumX += float64(x)
		sumY += float64(y)
		n++
	}
	if n == 0 {
		return 0, 0, false
	}
	return float32(sumX / float64(n)), float32(sumY / float64(n)), true
}
