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

// Package stretch renders float32 pixel arrays into 8-bit grayscale
// visualizations, either anchored on the modal histogram bin (peak mode) or
// on a single low percentile of the data with the maximum as the high bound
// (percentile mode).
package stretch

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/278261631/local-kats-sub000/internal/stats"
)

// Mode selects how black/white points are chosen before the midtones curve
// is applied.
type Mode int

const (
	// ModePeak anchors v_lo on the modal bin of a 2000-bin histogram of
	// the data (the background peak) and v_hi two thirds of the way from
	// there to the data maximum.
	ModePeak Mode = iota
	// ModePercentile anchors v_lo on a single low percentile of the data
	// (ignoring the faint end) and v_hi on the data maximum.
	ModePercentile
)

// peakHistogramBins is the bin count the peak mode's modal-bin search uses,
// matching the quick-look preview's histogram resolution.
const peakHistogramBins = 2000

// Params controls a single stretch invocation.
type Params struct {
	Mode       Mode
	Percentile float32 // ModePercentile: low bound, e.g. 99.95; high bound is always the data max
	Gamma      float32 // applied after black/white point normalization; 1 disables
}

// DefaultPeakParams returns typical parameters for a peak-anchored stretch.
func DefaultPeakParams() Params {
	return Params{Mode: ModePeak, Gamma: 1}
}

// DefaultPercentileParams returns typical parameters for a percentile stretch.
func DefaultPercentileParams() Params {
	return Params{Mode: ModePercentile, Percentile: 99.95, Gamma: 1}
}

// blackWhite derives the [black, white] data-unit bounds for p over data.
func blackWhite(data []float32, width int32, p Params) (black, white float32, err error) {
	switch p.Mode {
	case ModePeak:
		s := stats.NewStats(data, width)
		max := s.Max()
		bins := make([]int32, peakHistogramBins)
		stats.Histogram(data, s.Min(), max, bins)
		black, _ = stats.GetPeak(bins, s.Min(), max)
		white = black + (max-black)*2/3
	case ModePercentile:
		black = stats.Percentile(data, p.Percentile)
		white = stats.NewStats(data, width).Max()
	default:
		return 0, 0, fmt.Errorf("stretch: unknown mode %d", p.Mode)
	}
	if white-black < 1e-8 {
		white = black + 1e-8
	}
	return black, white, nil
}

// Stretch computes an 8-bit grayscale rendering of data (row width width),
// returning the image and the [black, white] bounds used in data units.
func Stretch(data []float32, width, height int32, p Params) (*image.Gray, float32, float32, error) {
	if len(data) == 0 {
		return nil, 0, 0, fmt.Errorf("stretch: empty data")
	}
	black, white, err := blackWhite(data, width, p)
	if err != nil {
		return nil, 0, 0, err
	}

	gamma := p.Gamma
	if gamma == 0 {
		gamma = 1
	}

	img := image.NewGray(image.Rect(0, 0, int(width), int(height)))
	scale := float32(1) / (white - black)
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			v := (data[y*width+x] - black) * scale
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			if gamma != 1 {
				v = float32(math.Pow(float64(v), 1/float64(gamma)))
			}
			img.SetGray(int(x), int(y), color.Gray{Y: uint8(v*255 + 0.5)})
		}
	}
	return img, black, white, nil
}

// StretchFloat32 applies the same black/white mapping as Stretch but keeps
// the result as full-precision [0,1] floats, for callers (LineSuppressor,
// BlobDetector) that need data finer than 8-bit quantization.
func StretchFloat32(data []float32, width int32, p Params) ([]float32, float32, float32, error) {
	if len(data) == 0 {
		return nil, 0, 0, fmt.Errorf("stretch: empty data")
	}
	black, white, err := blackWhite(data, width, p)
	if err != nil {
		return nil, 0, 0, err
	}
	scale := float32(1) / (white - black)
	out := make([]float32, len(data))
	for i, v := range data {
		nv := (v - black) * scale
		if nv < 0 {
			nv = 0
		}
		if nv > 1 {
			nv = 1
		}
		out[i] = nv
	}
	return out, black, white, nil
}

// ApplyMidtones rescales v in [0,1] so that the value mid maps to 0.5 and
// the value black maps to 0, via the midtone transfer function
// f(x) = (m-1)*x / ((2m-1)*x - m), where x = (v-black)/(1-black) and
// m = (mid-black)/(1-black).
func ApplyMidtones(v, mid, black float32) float32 {
	if v <= black {
		return 0
	}
	x := (v - black) / (1 - black)
	if x > 1 {
		x = 1
	}
	m := (mid - black) / (1 - black)
	if m <= 0 {
		m = 1e-6
	}
	denom := (2*m-1)*x - m
	if denom == 0 {
		return x
	}
	return (m - 1) * x / denom
}
