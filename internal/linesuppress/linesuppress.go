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

// Package linesuppress detects and inpaints satellite trails and other
// straight-line artifacts in a difference image, so they don't masquerade
// as strings of transient candidates.
package linesuppress

import "math"

// Params controls a single suppression pass. Active follows the teacher's
// Op* convention: when false, Suppress is a no-op returning its input
// unchanged.
type Params struct {
	Active       bool
	Threshold    float32 // pixel value (in sigma units) to enter the binary mask
	ThetaBins    int32   // angular resolution of the Hough accumulator
	RhoStep      float32 // radial bin width in pixels
	MinVotes     int32   // minimum accumulator votes to consider a line candidate
	MinLength    float32 // minimum pixel run length along a candidate line
	MaxGap       float32 // maximum gap to bridge when extracting a segment
	DilateRadius int32   // structuring element radius used to widen the mask before inpainting
}

// DefaultParams returns a disabled suppressor with reasonable detection
// parameters, so callers only need to flip Active on.
func DefaultParams() Params {
	return Params{
		Active:       false,
		Threshold:    5,
		ThetaBins:    180,
		RhoStep:      1,
		MinVotes:     40,
		MinLength:    30,
		MaxGap:       5,
		DilateRadius: 2,
	}
}

// Segment is a straight-line artifact found in the data, described by its
// Hough-space parameters and its pixel-space endpoints.
type Segment struct {
	Rho, Theta float32
	X0, Y0     float32
	X1, Y1     float32
	Votes      int32
}

// Suppress detects line-shaped artifacts in data (row width width) and
// inpaints them with the mean of their local neighborhood outside the mask,
// returning the cleaned data and the segments removed. When p.Active is
// false, it returns data unchanged and no segments.
func Suppress(data []float32, width int32, p Params) ([]float32, []Segment) {
	out := make([]float32, len(data))
	copy(out, data)
	if !p.Active {
		return out, nil
	}

	height := int32(len(data)) / width
	binary := threshold(data, p.Threshold)
	acc, rhoMax := accumulate(binary, width, height, p.ThetaBins, p.RhoStep)
	segments := extractSegments(binary, width, height, acc, rhoMax, p)

	mask := make([]bool, len(data))
	for _, s := range segments {
		rasterizeSegment(mask, width, height, s, p.DilateRadius)
	}
	inpaint(out, mask, width, height, p.DilateRadius+1)
	return out, segments
}

// threshold returns a binary mask of pixels whose magnitude exceeds t.
func threshold(data []float32, t float32) []bool {
	mask := make([]bool, len(data))
	for i, v := range data {
		if v > t || v < -t {
			mask[i] = true
		}
	}
	return mask
}

// accumulate builds a Hough-space (rho,theta) vote accumulator over the
// thresholded pixels, quantized to thetaBins angles and rhoStep-wide radial
// bins, and returns it alongside the maximum rho magnitude (for bin lookup).
func accumulate(binary []bool, width, height, thetaBins int32, rhoStep float32) (acc [][]int32, rhoMax float32) {
	rhoMax = float32(math.Hypot(float64(width), float64(height)))
	rhoBins := int32(2*rhoMax/rhoStep) + 1
	acc = make([][]int32, thetaBins)
	for t := range acc {
		acc[t] = make([]int32, rhoBins)
	}

	cosT := make([]float32, thetaBins)
	sinT := make([]float32, thetaBins)
	for t := int32(0); t < thetaBins; t++ {
		theta := float64(t) * math.Pi / float64(thetaBins)
		s, c := math.Sincos(theta)
		cosT[t], sinT[t] = float32(c), float32(s)
	}

	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			if !binary[y*width+x] {
				continue
			}
			for t := int32(0); t < thetaBins; t++ {
				rho := float32(x)*cosT[t] + float32(y)*sinT[t]
				bin := int32((rho+rhoMax)/rhoStep)
				if bin >= 0 && bin < rhoBins {
					acc[t][bin]++
				}
			}
		}
	}
	return acc, rhoMax
}

// extractSegments finds (rho,theta) peaks with at least p.MinVotes support,
// then walks the corresponding line through the thresholded image to find
// contiguous runs of at least p.MinLength, bridging gaps up to p.MaxGap.
func extractSegments(binary []bool, width, height int32, acc [][]int32, rhoMax float32, p Params) []Segment {
	var segments []Segment
	thetaBins := int32(len(acc))
	for t := int32(0); t < thetaBins; t++ {
		theta := float32(t) * math.Pi / float32(thetaBins)
		for bin, votes := range acc[t] {
			if votes < p.MinVotes {
				continue
			}
			rho := float32(bin)*p.RhoStep - rhoMax
			if seg, ok := walkLine(binary, width, height, rho, theta, p); ok {
				seg.Votes = votes
				segments = append(segments, seg)
			}
		}
	}
	return segments
}

// walkLine samples the line rho=x*cos(theta)+y*sin(theta) across the image
// bounding box and returns the longest contiguous run of set pixels (gaps up
// to maxGap bridged), if it meets minLength.
func walkLine(binary []bool, width, height int32, rho, theta float32, p Params) (Segment, bool) {
	cosT, sinT := float32(math.Cos(float64(theta))), float32(math.Sin(float64(theta)))

	var pts [][2]float32
	if math.Abs(float64(sinT)) > math.Abs(float64(cosT)) {
		for x := float32(0); x < float32(width); x++ {
			y := (rho - x*cosT) / sinT
			if y >= 0 && y < float32(height) {
				pts = append(pts, [2]float32{x, y})
			}
		}
	} else {
		for y := float32(0); y < float32(height); y++ {
			x := (rho - y*sinT) / cosT
			if x >= 0 && x < float32(width) {
				pts = append(pts, [2]float32{x, y})
			}
		}
	}
	if len(pts) < 2 {
		return Segment{}, false
	}

	bestStart, bestEnd, bestLen := 0, 0, float32(0)
	runStart := 0
	gap := float32(0)
	for i, pt := range pts {
		x, y := int32(pt[0]), int32(pt[1])
		set := x >= 0 && x < width && y >= 0 && y < height && binary[y*width+x]
		if set {
			gap = 0
		} else {
			gap++
			if gap > p.MaxGap {
				runStart = i + 1
			}
		}
		if runStart > i {
			continue
		}
		length := distance(pts[runStart], pt)
		if length > bestLen {
			bestLen = length
			bestStart, bestEnd = runStart, i
		}
	}
	if bestLen < p.MinLength {
		return Segment{}, false
	}
	return Segment{
		Rho: rho, Theta: theta,
		X0: pts[bestStart][0], Y0: pts[bestStart][1],
		X1: pts[bestEnd][0], Y1: pts[bestEnd][1],
	}, true
}

func distance(a, b [2]float32) float32 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

// rasterizeSegment marks mask pixels within radius of the segment between
// (X0,Y0) and (X1,Y1), the structuring element used to widen a thin Hough
// line before inpainting.
func rasterizeSegment(mask []bool, width, height int32, s Segment, radius int32) {
	length := distance([2]float32{s.X0, s.Y0}, [2]float32{s.X1, s.Y1})
	steps := int32(length) + 1
	for i := int32(0); i <= steps; i++ {
		f := float32(i) / float32(steps)
		x := s.X0 + (s.X1-s.X0)*f
		y := s.Y0 + (s.Y1-s.Y0)*f
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx*dx+dy*dy > radius*radius {
					continue
				}
				px, py := int32(x)+dx, int32(y)+dy
				if px >= 0 && px < width && py >= 0 && py < height {
					mask[py*width+px] = true
				}
			}
		}
	}
}

// inpaint replaces each masked pixel with the mean of its unmasked
// neighborhood (radius r), falling back to the global mean if every
// neighbor is also masked.
func inpaint(data []float32, mask []bool, width, height, r int32) {
	orig := make([]float32, len(data))
	copy(orig, data)

	globalSum, globalN := float32(0), 0
	for i, v := range orig {
		if !mask[i] {
			globalSum += v
			globalN++
		}
	}
	globalMean := float32(0)
	if globalN > 0 {
		globalMean = globalSum / float32(globalN)
	}

	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			i := y*width + x
			if !mask[i] {
				continue
			}
			sum, n := float32(0), 0
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					px, py := x+dx, y+dy
					if px < 0 || px >= width || py < 0 || py >= height {
						continue
					}
					j := py*width + px
					if mask[j] {
						continue
					}
					sum += orig[j]
					n++
				}
			}
			if n > 0 {
				data[i] = sum / float32(n)
			} else {
				data[i] = globalMean
			}
		}
	}
}
