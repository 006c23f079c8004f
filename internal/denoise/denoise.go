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

// Package denoise detects and corrects hot/cold pixels that would otherwise
// masquerade as transient candidates, by comparing each pixel against a
// local 3x3 median filter.
package denoise

import (
	"runtime"
	"sync"

	"github.com/278261631/local-kats-sub000/internal/median"
	"github.com/278261631/local-kats-sub000/internal/stats"
)

// BadPixelMap returns the indices of pixels that deviate from a 3x3 median
// filter by more than sigmaLow/sigmaHigh standard deviations of the overall
// median-difference distribution, along with that distribution's stats.
func BadPixelMap(data []float32, width int32, sigmaLow, sigmaHigh float32) (bpm []int32, medianDiffStats *stats.Stats) {
	tmp := make([]float32, len(data))
	median.MedianFilter3x3(tmp, data, width)
	for i := range tmp {
		tmp[i] = data[i] - tmp[i]
	}

	medianDiffStats = stats.NewStats(tmp, 0)
	sd := medianDiffStats.StdDev()
	thresholdLow := -sd * sigmaLow
	thresholdHigh := sd * sigmaHigh
	medianDiffStats.FreeData()

	bpm = make([]int32, 0, len(data)/100)
	for i, t := range tmp {
		if t < thresholdLow || t > thresholdHigh {
			bpm = append(bpm, int32(i))
		}
	}
	return bpm, medianDiffStats
}

// CorrectSparse replaces each indexed pixel with the median of its local
// neighborhood (given by mask), in place.
func CorrectSparse(data []float32, indices []int32, mask []int32) {
	buffer := make([]float32, len(mask))
	for _, i := range indices {
		data[i] = median.GatherAndMedian(data, i, mask, buffer)
	}
}

// Clean detects and in-place replaces bad pixels in data (row width width)
// using a disc-shaped correction neighborhood of the given radius. Returns
// the number of pixels corrected.
func Clean(data []float32, width int32, sigmaLow, sigmaHigh, radius float32) (corrected int) {
	bpm, _ := BadPixelMap(data, width, sigmaLow, sigmaHigh)
	mask := median.CreateMask(width, radius)
	CorrectSparse(data, bpm, mask)
	return len(bpm)
}

// Filter applies an element-wise median filter over data with the local
// neighborhood defined by mask, parallelized across available CPUs, and
// stores the result in output.
func Filter(output, data []float32, mask []int32) {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	stepSize := (len(data) + workers - 1) / workers
	if stepSize < 1 {
		stepSize = 1
	}
	var wg sync.WaitGroup
	for step := 0; step < len(data); step += stepSize {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			end := start + stepSize
			if end > len(data) {
				end = len(data)
			}
			buffer := make([]float32, len(mask))
			for i := start; i < end; i++ {
				output[i] = median.GatherAndMedian(data, int32(i), mask, buffer)
			}
		}(step)
	}
	wg.Wait()
}
