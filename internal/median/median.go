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

// Package median implements fixed and variable-neighborhood median filters
// over float32 pixel arrays, used for bad pixel detection and local
// background estimation.
package median

import (
	"math"

	"github.com/278261631/local-kats-sub000/internal/qsort"
)

// MedianFilter3x3 applies a 3x3 median filter to data (row width width) and
// stores the result in output. The outermost rows and columns are copied
// unchanged.
func MedianFilter3x3(output, data []float32, width int32) {
	height := len(data) / int(width)
	copy(output[:width], data[:width])

	for line := 0; line < height-2; line++ {
		start, end := line*int(width), (line+3)*int(width)

		output[start+int(width)] = data[start+int(width)]
		medianFilterLine3x3(output[start:end], data[start:end], width)
		output[start+2*int(width)-1] = data[start+2*int(width)-1]
	}
	copy(output[(height-1)*int(width):], data[(height-1)*int(width):])
}

// medianFilterLine3x3 applies a 3x3 median filter to three rows of input
// data (given width), writing the middle row into output. Leaves the first
// and last column of that row untouched.
func medianFilterLine3x3(output, data []float32, width int32) {
	var gathered = [9]float32{}

	for i := width + 1; i < 2*width-1; i++ {
		ioff := i - width - 1
		j := 0
		gathered[j] = data[ioff]
		ioff++
		j++
		gathered[j] = data[ioff]
		ioff++
		j++
		gathered[j] = data[ioff]
		ioff += width - 2
		j++
		gathered[j] = data[ioff]
		ioff++
		j++
		gathered[j] = data[ioff]
		ioff++
		j++
		gathered[j] = data[ioff]
		ioff += width - 2
		j++
		gathered[j] = data[ioff]
		ioff++
		j++
		gathered[j] = data[ioff]
		ioff++
		j++
		gathered[j] = data[ioff]
		output[i] = MedianFloat32Slice9(gathered[:])
	}
}

// MedianFloat32Slice9 returns the median of a float32 slice of length nine,
// reordering elements in place via a 19-comparator sorting network.
// a must not contain IEEE NaN.
func MedianFloat32Slice9(a []float32) float32 {
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[1] > a[2] {
		a[1], a[2] = a[2], a[1]
	}
	if a[4] > a[5] {
		a[4], a[5] = a[5], a[4]
	}
	if a[7] > a[8] {
		a[7], a[8] = a[8], a[7]
	}
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[0] > a[3] {
		a[3] = a[0]
	}
	if a[3] > a[6] {
		a[6] = a[3]
	}
	if a[1] > a[4] {
		a[1], a[4] = a[4], a[1]
	}
	if a[4] > a[7] {
		a[4] = a[7]
	}
	if a[1] > a[4] {
		a[4] = a[1]
	}
	if a[5] > a[8] {
		a[5] = a[8]
	}
	if a[2] > a[5] {
		a[2] = a[5]
	}
	if a[2] > a[4] {
		a[2], a[4] = a[4], a[2]
	}
	if a[4] > a[6] {
		a[4] = a[6]
	}
	if a[2] > a[4] {
		a[4] = a[2]
	}
	return a[4]
}

// MedianFloat32 returns the median of a, reordering elements in place.
// a must not contain IEEE NaN.
func MedianFloat32(a []float32) float32 {
	if len(a) == 0 {
		return float32(math.NaN())
	}
	if len(a) == 9 {
		return MedianFloat32Slice9(a)
	}
	return qsort.QSelectMedianFloat32(a)
}

// CreateMask returns a list of index offsets for a disc-shaped neighborhood
// of the given radius around a pixel, for use with GatherAndMedian.
func CreateMask(width int32, radius float32) []int32 {
	var mask []int32
	rad := int32(radius)
	for y := -rad; y <= rad; y++ {
		for x := -rad; x <= rad; x++ {
			dist := float32(math.Sqrt(float64(y*y + x*x)))
			if dist <= radius+1e-8 {
				mask = append(mask, y*width+x)
			}
		}
	}
	return mask
}

// GatherAndMedian gathers the values of data at index+offset for each
// offset in mask into buffer (reused across calls, must have len(mask)
// capacity), skipping offsets that fall outside data, and returns their
// median.
func GatherAndMedian(data []float32, index int32, mask []int32, buffer []float32) float32 {
	n := 0
	for _, o := range mask {
		i := index + o
		if i >= 0 && int(i) < len(data) {
			buffer[n] = data[i]
			n++
		}
	}
	return MedianFloat32(buffer[:n])
}
