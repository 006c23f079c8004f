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

package blobs

// ellipse3x3 is the 3x3 elliptical structuring element used by the
// reference detector's cv2.MORPH_ELLIPSE kernel: the corners are dropped,
// the cross and center are kept.
var ellipse3x3 = [3][3]bool{
	{false, true, false},
	{true, true, true},
	{false, true, false},
}

// erode returns the erosion of mask (row width width, height rows) by the
// 3x3 ellipse structuring element: a pixel survives only if every element
// position it covers is also set.
func erode(mask []bool, width, height int32) []bool {
	out := make([]bool, len(mask))
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			keep := true
			for dy := int32(-1); dy <= 1 && keep; dy++ {
				for dx := int32(-1); dx <= 1; dx++ {
					if !ellipse3x3[dy+1][dx+1] {
						continue
					}
					px, py := x+dx, y+dy
					if px < 0 || px >= width || py < 0 || py >= height || !mask[py*width+px] {
						keep = false
						break
					}
				}
			}
			out[y*width+x] = keep
		}
	}
	return out
}

// dilate returns the dilation of mask by the 3x3 ellipse structuring
// element: a pixel is set if any element position it covers is set in mask.
func dilate(mask []bool, width, height int32) []bool {
	out := make([]bool, len(mask))
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			set := false
			for dy := int32(-1); dy <= 1 && !set; dy++ {
				for dx := int32(-1); dx <= 1; dx++ {
					if !ellipse3x3[dy+1][dx+1] {
						continue
					}
					px, py := x+dx, y+dy
					if px >= 0 && px < width && py >= 0 && py < height && mask[py*width+px] {
						set = true
						break
					}
				}
			}
			out[y*width+x] = set
		}
	}
	return out
}

// morphOpen removes small isolated noise pixels: erosion followed by
// dilation.
func morphOpen(mask []bool, width, height int32) []bool {
	return dilate(erode(mask, width, height), width, height)
}

// morphClose fills small holes within regions: dilation followed by
// erosion.
func morphClose(mask []bool, width, height int32) []bool {
	return erode(dilate(mask, width, height), width, height)
}
