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

// Package starfind detects point sources (stars, and by extension compact
// transient candidates) in a 2D pixel array via thresholding, overlap
// rejection, centroiding and half-flux-radius based plausibility filtering.
package starfind

import (
	"fmt"
	"io"
	"math"

	"github.com/278261631/local-kats-sub000/internal/median"
	"github.com/278261631/local-kats-sub000/internal/stats"
	"github.com/valyala/fastrand"
)

// Star is a point source found by Find, located to sub-pixel precision.
type Star struct {
	Index int32 // index into the data array: int32(x)+width*int32(y)
	Value float32
	X     float32 // center-of-mass x position
	Y     float32 // center-of-mass y position
	Mass  float32 // summed pixel value above background, within radius
	HFR   float32 // half-flux radius in pixels
}

// Dimensions reports that a Star has two coordinates (X, Y).
func (s *Star) Dimensions() int { return 2 }

// Dimension returns the i-th coordinate of s (0=X, 1=Y).
func (s *Star) Dimension(i int) float64 {
	if i == 0 {
		return float64(s.X)
	}
	return float64(s.Y)
}

// PrintStars writes stars to w as CSV.
func PrintStars(w io.Writer, stars []Star) {
	fmt.Fprintln(w, "Index,Value,X,Y,Mass,HFR")
	for _, s := range stars {
		fmt.Fprintf(w, "%d,%g,%g,%g,%g,%g\n", s.Index, s.Value, s.X, s.Y, s.Mass, s.HFR)
	}
}

// Params controls the thresholds used by Find.
type Params struct {
	StarSig   float32 // threshold above background, in units of scale
	BPSigma   float32 // bad pixel rejection sigma, 0 disables
	StarInOut float32 // minimum inner/outer brightness ratio to accept a star
	Radius    int32   // search radius in pixels
}

// DefaultParams returns the thresholds used by the reference pipeline.
func DefaultParams() Params {
	return Params{StarSig: 10, BPSigma: 3, StarInOut: 1.4, Radius: 16}
}

// Find detects stars in data (row width width) whose location/scale
// estimate is location/scale, returning the accepted stars, the summed
// centroid shift distance and the average half-flux radius.
func Find(data []float32, width int32, location, scale float32, p Params) (stars []Star, sumOfShifts, avgHFR float32) {
	stars = findBrightPixels(data, width, location+scale*p.StarSig, p.Radius)

	if p.BPSigma > 0 {
		stars = rejectBadPixels(stars, data, width, p.BPSigma, nil)
	}

	sortStarsDesc(stars)
	stars = filterOutOverlaps(stars, width, int32(len(data))/width, p.Radius)

	sumOfShifts = shiftToCenterOfMass(stars, data, width, location+scale*p.StarSig*0.5, p.Radius)

	sortStarsDesc(stars)
	stars = filterOutOverlaps(stars, width, int32(len(data))/width, p.Radius)

	stars, avgHFR = calcAndFilterHalfFluxRadius(stars, data, width, float32(p.Radius), location, p.StarInOut)

	res := make([]Star, len(stars))
	copy(res, stars)
	return res, sumOfShifts, avgHFR
}

// sortStarsDesc sorts stars by descending Mass in place, using an insertion
// sort.
func sortStarsDesc(stars []Star) {
	n := len(stars)
	for i := 1; i < n; i++ {
		s := stars[i]
		j := i - 1
		for j >= 0 && stars[j].Mass < s.Mass {
			stars[j+1] = stars[j]
			j--
		}
		stars[j+1] = s
	}
}

func findBrightPixels(data []float32, width int32, threshold float32, radius int32) []Star {
	stars := make([]Star, len(data)/100)[:0]

	for i, v := range data {
		if v > threshold {
			is := Star{Index: int32(i), Value: v, X: float32(int32(i) % width), Y: float32(int32(i) / width), Mass: v, HFR: 1}

			if len(stars) > 0 {
				oldS := stars[len(stars)-1]
				if oldS.Y == is.Y && oldS.X >= is.X-float32(radius) {
					if oldS.Value >= is.Value {
						continue
					}
					stars[len(stars)-1] = is
					continue
				}
			}
			stars = append(stars, is)
		}
	}
	return stars
}

// rejectBadPixels drops candidates whose value differs from the local
// median by more than sigma times the standard deviation of that
// difference, estimated from medianDiffStats (or a fresh 1% sample if nil).
func rejectBadPixels(stars []Star, data []float32, width int32, sigma float32, medianDiffStats *stats.Stats) []Star {
	mask := median.CreateMask(width, 1.5)
	buffer := make([]float32, len(mask))

	if medianDiffStats == nil {
		numSamples := len(data) / 100
		samples := make([]float32, numSamples)
		rng := fastrand.RNG{}
		for i := 0; i < numSamples; i++ {
			index := int32(rng.Uint32n(uint32(len(data))))
			m := median.GatherAndMedian(data, index, mask, buffer)
			samples[i] = data[index] - m
		}
		medianDiffStats = stats.NewStats(samples, 0)
	}

	threshold := medianDiffStats.StdDev() * sigma
	remaining := 0
	for _, s := range stars {
		m := median.GatherAndMedian(data, s.Index, mask, buffer)
		diff := data[s.Index] - m
		if diff < threshold && -diff < threshold {
			stars[remaining] = s
			remaining++
		}
	}
	return stars[:remaining]
}

type starListItem struct {
	Star *Star
	Next *starListItem
}

// filterOutOverlaps keeps only the brightest star within radius of any
// cluster, using a spatial grid to avoid quadratic comparisons.
func filterOutOverlaps(stars []Star, width, height, radius int32) []Star {
	binSize := int32(256)
	xBins := (width + binSize - 1) / binSize
	yBins := (height + binSize - 1) / binSize
	bins := make([]*starListItem, int(xBins*yBins))
	slis := make([]starListItem, ((len(stars)+1023)/1024)*1024)
	radiusSquared := radius * radius

	numRemainingStars := 0
forAllStars:
	for _, s := range stars {
		xCell, yCell := int32(s.X+0.5)/binSize, int32(s.Y+0.5)/binSize

		for dy := int32(-1); dy <= 1; dy++ {
			if yCell+dy < 0 || yCell+dy >= yBins {
				continue
			}
			for dx := int32(-1); dx <= 1; dx++ {
				if xCell+dx < 0 || xCell+dx >= xBins {
					continue
				}
				cellIndex := (xCell + dx) + (yCell+dy)*xBins

				for ptr := bins[cellIndex]; ptr != nil; ptr = ptr.Next {
					s2 := ptr.Star
					xDist := s.X - s2.X
					yDist := s.Y - s2.Y
					sqDist := int32(xDist*xDist + yDist*yDist + 0.5)

					if sqDist <= radiusSquared {
						continue forAllStars
					}
				}
			}
		}

		stars[numRemainingStars] = s

		slis[numRemainingStars] = starListItem{&(stars[numRemainingStars]), nil}
		cellIndex := xCell + yCell*xBins
		ptr := bins[cellIndex]
		if ptr == nil {
			bins[cellIndex] = &(slis[numRemainingStars])
		} else {
			for ptr.Next != nil {
				ptr = ptr.Next
			}
			ptr.Next = &(slis[numRemainingStars])
		}

		numRemainingStars++
	}

	return stars[:numRemainingStars]
}

// shiftToCenterOfMass iteratively moves each star to its floating-point
// center of mass, modifying stars in place, and returns the summed shift.
func shiftToCenterOfMass(stars []Star, data []float32, width int32, threshold float32, radius int32) (sumOfShifts float32) {
	for i, s := range stars {
		shiftSquared := float32(math.MaxFloat32)
		for round := int32(0); shiftSquared > 0.0001 && round < 10; round++ {
			xMoment, yMoment := float32(0), float32(0)
			mass := float32(0)
			for y := -radius; y <= radius; y++ {
				for x := -radius; x <= radius; x++ {
					index := s.Index + y*int32(width) + x
					value := float32(0)
					if index >= 0 && int(index) < len(data) {
						value = data[index] - threshold
						if value < 0 {
							value = 0
						}
					}
					xMoment += float32(x) * value
					yMoment += float32(y) * value
					mass += value
				}
			}

			x := s.Index % int32(width)
			y := s.Index / int32(width)
			if mass == 0.0 {
				mass = 1e-8
			}
			deltaX := xMoment / mass
			deltaY := yMoment / mass
			newX := float32(x) + deltaX
			newY := float32(y) + deltaY

			preciseDeltaX := newX - s.X
			preciseDeltaY := newY - s.Y
			shiftSquared = preciseDeltaX*preciseDeltaX + preciseDeltaY*preciseDeltaY
			index := s.Index + width*int32(deltaY+0.5) + int32(deltaX+0.5)
			value := float32(0)
			if index >= 0 && int(index) < len(data) {
				value = data[index]
			}
			s = Star{Index: index, Value: value, X: newX, Y: newY, Mass: mass}
			stars[i] = s
		}
		sumOfShifts += float32(math.Sqrt(float64(shiftSquared)))
	}
	return sumOfShifts
}

// calcAndFilterHalfFluxRadius computes each star's half-flux radius
// (https://en.wikipedia.org/wiki/Half_flux_diameter) and drops implausible
// candidates whose inner/outer brightness ratio falls below starInOut.
func calcAndFilterHalfFluxRadius(stars []Star, data []float32, width int32, radius, location, starInOut float32) (res []Star, avgHFR float32) {
	numRemainingStars := 0

	for _, s := range stars {
		moment, mass := float32(0), float32(0)
		rad := int32(math.Ceil(float64(radius)))
		distSqLimit := int32(math.Ceil(float64(radius+1e-8) * float64(radius+1e-8)))
		for y := -rad; y <= rad; y++ {
			for x := -rad; x <= rad; x++ {
				distSq := x*x + y*y
				if distSq > distSqLimit {
					continue
				}
				distance := float32(math.Sqrt(float64(distSq)))

				index := s.Index + y*width + x
				value := float32(0.0)
				if index >= 0 && index < int32(len(data)) {
					if v := data[index] - location; v > 0 {
						value = v
					}
				}
				moment += distance * value
				mass += value
			}
		}
		if mass == 0.0 {
			mass = 1e-8
		}
		hfr := moment / mass

		if hfr > radius {
			continue
		}

		innerMass, innerPixels := float32(0), int32(0)
		innerRad := int32(math.Ceil(float64(hfr)))
		distSqLimit = int32(math.Ceil(float64(hfr * hfr)))
		for y := -innerRad; y <= innerRad; y++ {
			for x := -innerRad; x <= innerRad; x++ {
				distSq := x*x + y*y
				if distSq > distSqLimit {
					continue
				}

				index := s.Index + y*width + x
				value := float32(0.0)
				if index >= 0 && index < int32(len(data)) {
					if v := data[index] - location; v > 0 {
						value = v
					}
				}
				innerMass += value
				innerPixels++
			}
		}

		outerMass := mass - innerMass
		pixels := (2*rad + 1) * (2*rad + 1)
		outerPixels := pixels - innerPixels
		if innerMass*float32(outerPixels) <= starInOut*outerMass*float32(innerPixels) {
			continue
		}

		s.HFR = hfr
		s.Mass = mass
		stars[numRemainingStars] = s
		numRemainingStars++

		avgHFR += hfr
	}
	if numRemainingStars > 0 {
		avgHFR /= float32(numRemainingStars)
	}
	return stars[:numRemainingStars], avgHFR
}
