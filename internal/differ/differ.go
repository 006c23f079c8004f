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

// Package differ computes the difference between an aligned observation and
// its reference template: an overlap mask, a robustly-normalized subtraction,
// and an optional Gaussian blur to suppress single-pixel noise ahead of blob
// detection.
package differ

import (
	"fmt"
	"runtime"

	"github.com/278261631/local-kats-sub000/internal/fitsimage"
	"github.com/278261631/local-kats-sub000/internal/stats"
)

// overlapEpsilon is the minimum magnitude a pixel needs, in both input
// images, to be counted as inside the overlap region rather than a
// reprojection fill value.
const overlapEpsilon = 1e-6

// Difference is the result of subtracting an aligned observation from its
// reference template.
type Difference struct {
	Data        *fitsimage.Image // normalized, blurred, overlap-masked difference
	OverlapMask []uint8          // 1 where both inputs contributed a real pixel, 0 otherwise
	BBox        [4]int32         // xmin,ymin,xmax,ymax of the nonzero mask region
}

// BuildDifference computes the difference image between ref and aligned
// (both already resampled onto a common pixel grid, equal shape). Pixels
// outside the overlap of both frames are zeroed. Each input is independently
// normalized to [0,1] by its own robust 1st/99th percentile spread over the
// overlap region, then an optional Gaussian blur of standard deviation
// blurSigma is applied to each (blurSigma<=0 disables blurring) before the
// two are subtracted and the absolute value taken, so both brightened and
// faded transients survive the difference.
func BuildDifference(ref, aligned *fitsimage.Image, blurSigma float32) (*Difference, error) {
	if len(ref.Data) != len(aligned.Data) {
		return nil, fmt.Errorf("differ: shape mismatch, %d vs %d pixels", len(ref.Data), len(aligned.Data))
	}
	for i, n := range ref.Naxisn {
		if aligned.Naxisn[i] != n {
			return nil, fmt.Errorf("differ: axis %d mismatch, %d vs %d", i, n, aligned.Naxisn[i])
		}
	}
	width := ref.Naxisn[0]

	mask := make([]uint8, len(ref.Data))
	overlapCount := 0
	for i := range mask {
		r, a := ref.Data[i], aligned.Data[i]
		if absf32(r) <= overlapEpsilon || absf32(a) <= overlapEpsilon {
			continue
		}
		mask[i] = 1
		overlapCount++
	}
	if overlapCount == 0 {
		return nil, fmt.Errorf("differ: no overlap between reference and aligned frame")
	}

	refNorm, err := normalizeToUnitRange(ref.Data, mask)
	if err != nil {
		return nil, fmt.Errorf("differ: reference: %w", err)
	}
	alignedNorm, err := normalizeToUnitRange(aligned.Data, mask)
	if err != nil {
		return nil, fmt.Errorf("differ: aligned: %w", err)
	}

	blurredRef := gaussianBlur(refNorm, width, blurSigma)
	blurredAligned := gaussianBlur(alignedNorm, width, blurSigma)

	diff := make([]float32, len(ref.Data))
	parallelFor(len(diff), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if mask[i] == 0 {
				continue
			}
			diff[i] = absf32(blurredAligned[i] - blurredRef[i])
		}
	})

	bbox := maskBBox(mask, width)

	img := fitsimage.NewImageFromNaxisn(ref.Naxisn, diff)
	img.FileName = aligned.FileName
	img.AppendHistory("differenced against %s, blurSigma=%.3f", ref.FileName, blurSigma)

	return &Difference{Data: img, OverlapMask: mask, BBox: bbox}, nil
}

// normalizeToUnitRange rescales data to [0,1] using the robust 1st/99th
// percentile spread of the pixels where mask is nonzero, clamping outliers.
// Pixels outside mask are still mapped (callers zero them via mask instead).
func normalizeToUnitRange(data []float32, mask []uint8) ([]float32, error) {
	overlapValues := make([]float32, 0, len(data))
	for i, m := range mask {
		if m != 0 {
			overlapValues = append(overlapValues, data[i])
		}
	}
	if len(overlapValues) == 0 {
		return nil, fmt.Errorf("no overlap pixels to normalize against")
	}

	lowP := stats.Percentile(overlapValues, 1)
	highP := stats.Percentile(overlapValues, 99)
	spread := highP - lowP
	if spread < 1e-6 {
		spread = 1e-6
	}

	out := make([]float32, len(data))
	parallelFor(len(out), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			v := (data[i] - lowP) / spread
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			out[i] = v
		}
	})
	return out, nil
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// maskBBox returns the bounding box of the nonzero entries of mask (row
// width width), or the zero box if mask is entirely zero.
func maskBBox(mask []uint8, width int32) [4]int32 {
	height := int32(len(mask)) / width
	xmin, ymin := width, height
	xmax, ymax := int32(-1), int32(-1)
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			if mask[y*width+x] == 0 {
				continue
			}
			if x < xmin {
				xmin = x
			}
			if x > xmax {
				xmax = x
			}
			if y < ymin {
				ymin = y
			}
			if y > ymax {
				ymax = y
			}
		}
	}
	if xmax < 0 {
		return [4]int32{0, 0, 0, 0}
	}
	return [4]int32{xmin, ymin, xmax, ymax}
}

// parallelFor splits [0,n) into CPU-sized batches and runs fn over each
// batch concurrently, blocking until all batches complete. Grounded on the
// teacher's ApplyPixelFunction semaphore-bounded batching pattern.
func parallelFor(n int, fn func(lo, hi int)) {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	batchSize := (n + workers - 1) / workers
	if batchSize < 1 {
		batchSize = 1
	}
	done := make(chan struct{}, workers)
	batches := 0
	for lo := 0; lo < n; lo += batchSize {
		hi := lo + batchSize
		if hi > n {
			hi = n
		}
		batches++
		go func(lo, hi int) {
			fn(lo, hi)
			done <- struct{}{}
		}(lo, hi)
	}
	for i := 0; i < batches; i++ {
		<-done
	}
}
