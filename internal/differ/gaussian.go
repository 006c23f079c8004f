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

package differ

import "math"

const sqrt2 = math.Sqrt2

// reflect maps x back into [0,size-1] by mirroring at the boundaries,
// avoiding dark/bright edge artifacts from the blur pass.
func reflect(size, x int32) int32 {
	if x < 0 {
		return -x - 1
	}
	if x >= size {
		return 2*size - x - 1
	}
	return x
}

// gaussianDefiniteIntegral returns the definite integral of the Gaussian
// with midpoint mu and standard deviation sigma, up to x.
func gaussianDefiniteIntegral(mu, sigma, x float32) float32 {
	return 0.5 * (1 + float32(math.Erf(float64((x-mu)/(sqrt2*sigma)))))
}

// gaussianKernel1D generates a normalized 1D Gaussian kernel for the given
// standard deviation via symbolic integration of the Gaussian over each bin,
// truncated once the tail mass drops below 1%.
func gaussianKernel1D(sigma float32) []float32 {
	mu := float32(0)
	acceptOut := float32(0.01)
	radius := int32(0)
	for {
		val := gaussianDefiniteIntegral(mu, sigma, -0.5-float32(radius))
		if val < acceptOut {
			radius--
			break
		}
		radius++
	}
	width := 2*radius + 1
	kernel := make([]float32, width)

	sum := float32(0)
	lower := gaussianDefiniteIntegral(mu, sigma, -0.5-float32(radius))
	for i := int32(0); i <= radius; i++ {
		upper := gaussianDefiniteIntegral(mu, sigma, -0.5-float32(radius)+float32(i+1))
		delta := upper - lower
		kernel[i] = delta
		sum += delta
		lower = upper
	}
	for i := int32(1); i <= radius; i++ {
		v := kernel[radius-i]
		kernel[radius+i] = v
		sum += v
	}
	factor := 1 / sum
	for i := range kernel {
		kernel[i] *= factor
	}
	return kernel
}

// convolve1DX convolves data (row width width) with kernel along rows.
func convolve1DX(res, data []float32, width int32, kernel []float32) {
	height := int32(len(data)) / width
	k := int32(len(kernel)) / 2
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			sum := float32(0)
			for i := -k; i <= k; i++ {
				x1 := reflect(width, x+i)
				sum += data[y*width+x1] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// convolve1DY convolves data (row width width) with kernel along columns.
func convolve1DY(res, data []float32, width int32, kernel []float32) {
	height := int32(len(data)) / width
	k := int32(len(kernel)) / 2
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			sum := float32(0)
			for i := -k; i <= k; i++ {
				y1 := reflect(height, y+i)
				sum += data[y1*width+x] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// gaussianBlur separably convolves data with a 2D Gaussian of standard
// deviation sigma and returns a newly-allocated result. sigma<=0 returns a
// copy of data unchanged.
func gaussianBlur(data []float32, width int32, sigma float32) []float32 {
	if sigma <= 0 {
		out := make([]float32, len(data))
		copy(out, data)
		return out
	}
	kernel := gaussianKernel1D(sigma)
	tmp := make([]float32, len(data))
	res := make([]float32, len(data))
	convolve1DX(tmp, data, width, kernel)
	convolve1DY(res, tmp, width, kernel)
	return res
}
