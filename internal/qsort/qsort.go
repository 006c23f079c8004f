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

// Package qsort provides in-place quickselect/quicksort helpers for
// float32 slices, used throughout the pipeline for percentile and
// median-based robust statistics.
package qsort

// QSortFloat32 sorts a of float32 in ascending order.
// a must not contain IEEE NaN.
func QSortFloat32(a []float32) {
	if len(a) > 1 {
		index := QPartitionFloat32(a)
		QSortFloat32(a[:index+1])
		QSortFloat32(a[index+1:])
	}
}

// QPartitionFloat32 partitions a with the middle pivot element, and returns the pivot index.
// Values less than the pivot are moved left of the pivot, those greater are moved right.
// a must not contain IEEE NaN.
func QPartitionFloat32(a []float32) int {
	left, right := 0, len(a)-1
	mid := (left + right) >> 1
	pivot := a[mid]
	l := left - 1
	r := right + 1
	for {
		for {
			l++
			if a[l] >= pivot {
				break
			}
		}
		for {
			r--
			if a[r] <= pivot {
				break
			}
		}
		if l >= r {
			return r
		}
		a[l], a[r] = a[r], a[l]
	}
}

// QSelectFirstQuartileFloat32 selects the first quartile of a. Partially reorders a.
// a must not contain IEEE NaN.
func QSelectFirstQuartileFloat32(a []float32) float32 {
	return QSelectFloat32(a, (len(a)>>2)+1)
}

// QSelectMedianFloat32 selects the median of a. Partially reorders a.
// a must not contain IEEE NaN.
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	m := QSelectFloat32(a, (n>>1)+1)
	if n&1 != 0 {
		return m
	}
	lower := a[0]
	for _, v := range a[1 : n>>1] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + m)
}

// QSelectPercentileFloat32 selects the p-th percentile (0..100) of a. Partially reorders a.
// a must not contain IEEE NaN and must be non-empty.
func QSelectPercentileFloat32(a []float32, p float32) float32 {
	k := int(float32(len(a))*p/100.0) + 1
	if k < 1 {
		k = 1
	}
	if k > len(a) {
		k = len(a)
	}
	return QSelectFloat32(a, k)
}

// QSelectFloat32 selects the kth lowest element (1-based) from a. Partially reorders a.
// a must not contain IEEE NaN.
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		mid := (left + right) >> 1
		pivot := a[mid]
		l, r := left-1, right+1
		for {
			for {
				l++
				if a[l] >= pivot {
					break
				}
			}
			for {
				r--
				if a[r] <= pivot {
					break
				}
			}
			if l >= r {
				break
			}
			a[l], a[r] = a[r], a[l]
		}
		index := r

		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k = k - offset
		}
	}
	return a[left]
}
