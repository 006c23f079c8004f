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

package fitsimage

import (
	"math"

	"github.com/278261631/local-kats-sub000/internal/geom"
)

// Project resamples img into a new pixel grid of shape destNaxisn via the
// given transform (mapping source coordinates onto the destination grid),
// using bilinear interpolation. Destination pixels that sample outside the
// source image are filled with outOfBounds.
func (f *Image) Project(destNaxisn []int32, trans geom.Transform2D, outOfBounds float32) (*Image, error) {
	invTrans, err := trans.Invert()
	if err != nil {
		return nil, err
	}

	destWidth := destNaxisn[0]
	res := NewImageFromNaxisn(destNaxisn, nil)
	res.ID, res.FileName, res.Exposure = f.ID, f.FileName, f.Exposure

	d := f.Data
	origWidth := f.Naxisn[0]

	for row := int32(0); row < destNaxisn[1]; row++ {
		for col := int32(0); col < destWidth; col++ {
			pt := geom.Point2D{X: float32(col), Y: float32(row)}
			proj := invTrans.Apply(pt)

			xl, yl := int32(math.Floor(float64(proj.X))), int32(math.Floor(float64(proj.Y)))
			xh, yh := xl+1, yl+1
			xr, yr := proj.X-float32(xl), proj.Y-float32(yl)

			if xl < 0 || xh >= origWidth || yl < 0 || yh >= f.Naxisn[1] {
				res.Data[col+row*destWidth] = outOfBounds
				continue
			}

			xlyl := xl + yl*origWidth
			xhyl := xlyl + 1
			xlyh := xlyl + origWidth
			xhyh := xhyl + origWidth

			vyl := d[xlyl]*(1-xr) + d[xhyl]*xr
			vyh := d[xlyh]*(1-xr) + d[xhyh]*xr
			v := vyl*(1-yr) + vyh*yr

			res.Data[col+row*destWidth] = v
		}
	}
	return res, nil
}
