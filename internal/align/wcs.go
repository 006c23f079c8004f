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

package align

import (
	"github.com/278261631/local-kats-sub000/internal/geom"
	"github.com/278261631/local-kats-sub000/internal/wcs"
)

// TransformByWCS derives the affine transform mapping target-image pixel
// coordinates onto reference-image pixel coordinates by round-tripping
// three non-collinear target pixels through sky coordinates: target pixel
// -> sky (targetWCS) -> reference pixel (refWCS).
func TransformByWCS(refWCS, targetWCS wcs.WCS, targetNaxisn []int32) (geom.Transform2D, error) {
	w, h := float64(targetNaxisn[0]), float64(targetNaxisn[1])
	samplePx := [3][2]float64{
		{w * 0.25, h * 0.25},
		{w * 0.75, h * 0.25},
		{w * 0.5, h * 0.75},
	}

	var src, dst [3]geom.Point2D
	for i, p := range samplePx {
		sky := targetWCS.PixelToSky(p[0], p[1])
		rx, ry, err := refWCS.SkyToPixel(sky)
		if err != nil {
			return geom.Transform2D{}, err
		}
		src[i] = geom.Point2D{X: float32(p[0]), Y: float32(p[1])}
		dst[i] = geom.Point2D{X: float32(rx), Y: float32(ry)}
	}

	return geom.NewTransform2D(src[0], src[1], src[2], dst[0], dst[1], dst[2])
}
