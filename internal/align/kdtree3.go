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

import "sort"

// triDist is a point in triangle-side-length space (dAB, dAC, dBC), used to
// index reference triangles for fast nearest-match lookup. It is kept local
// to this package rather than folded into geom.Point3D, since it indexes a
// distance triple rather than a spatial coordinate.
type triDist struct {
	X, Y, Z float32
	TriIdx  int32
}

func dist3Squared(a, b triDist) float32 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

// kdTree3 is a pointerless 3-dimensional k-d tree over triDist values.
type kdTree3 []triDist

func (points kdTree3) Make() {
	sort.Slice(points, func(i, j int) bool { return points[i].X <= points[j].X })
	l := len(points)
	if l > 1 {
		points[:l/2].makeY()
		if l > 2 {
			points[l/2+1:].makeY()
		}
	}
}

func (points kdTree3) makeY() {
	sort.Slice(points, func(i, j int) bool { return points[i].Y <= points[j].Y })
	l := len(points)
	if l > 1 {
		points[:l/2].makeZ()
		if l > 2 {
			points[l/2+1:].makeZ()
		}
	}
}

func (points kdTree3) makeZ() {
	sort.Slice(points, func(i, j int) bool { return points[i].Z <= points[j].Z })
	l := len(points)
	if l > 1 {
		points[:l/2].Make()
		if l > 2 {
			points[l/2+1:].Make()
		}
	}
}

func (kdt kdTree3) NearestNeighbor(p triDist) (closest triDist, closestDsq float32) {
	l := len(kdt)
	mid := kdt[l/2]
	closest, closestDsq = mid, dist3Squared(p, mid)
	if p.X <= mid.X {
		if l > 1 {
			pt, dsq := kdt[:l/2].nearestNeighborY(p)
			if dsq < closestDsq {
				closest, closestDsq = pt, dsq
			}
			if l > 2 {
				d := p.X - mid.X
				if d*d <= closestDsq {
					pt, dsq := kdt[l/2+1:].nearestNeighborY(p)
					if dsq < closestDsq {
						closest, closestDsq = pt, dsq
					}
				}
			}
		}
	} else {
		if l > 2 {
			pt, dsq := kdt[l/2+1:].nearestNeighborY(p)
			if dsq < closestDsq {
				closest, closestDsq = pt, dsq
			}
		}
		if l > 1 {
			d := p.X - mid.X
			if d*d <= closestDsq {
				pt, dsq := kdt[:l/2].nearestNeighborY(p)
				if dsq < closestDsq {
					closest, closestDsq = pt, dsq
				}
			}
		}
	}
	return closest, closestDsq
}

func (kdt kdTree3) nearestNeighborY(p triDist) (closest triDist, closestDsq float32) {
	l := len(kdt)
	mid := kdt[l/2]
	closest, closestDsq = mid, dist3Squared(p, mid)
	if p.Y <= mid.Y {
		if l > 1 {
			pt, dsq := kdt[:l/2].nearestNeighborZ(p)
			if dsq < closestDsq {
				closest, closestDsq = pt, dsq
			}
			if l > 2 {
				d := p.Y - mid.Y
				if d*d <= closestDsq {
					pt, dsq := kdt[l/2+1:].nearestNeighborZ(p)
					if dsq < closestDsq {
						closest, closestDsq = pt, dsq
					}
				}
			}
		}
	} else {
		if l > 2 {
			pt, dsq := kdt[l/2+1:].nearestNeighborZ(p)
			if dsq < closestDsq {
				closest, closestDsq = pt, dsq
			}
		}
		if l > 1 {
			d := p.Y - mid.Y
			if d*d <= closestDsq {
				pt, dsq := kdt[:l/2].nearestNeighborZ(p)
				if dsq < closestDsq {
					closest, closestDsq = pt, dsq
				}
			}
		}
	}
	return closest, closestDsq
}

func (kdt kdTree3) nearestNeighborZ(p triDist) (closest triDist, closestDsq float32) {
	l := len(kdt)
	mid := kdt[l/2]
	closest, closestDsq = mid, dist3Squared(p, mid)
	if p.Z <= mid.Z {
		if l > 1 {
			pt, dsq := kdt[:l/2].NearestNeighbor(p)
			if dsq < closestDsq {
				closest, closestDsq = pt, dsq
			}
			if l > 2 {
				d := p.Z - mid.Z
				if d*d <= closestDsq {
					pt, dsq := kdt[l/2+1:].NearestNeighbor(p)
					if dsq < closestDsq {
						closest, closestDsq = pt, dsq
					}
				}
			}
		}
	} else {
		if l > 2 {
			pt, dsq := kdt[l/2+1:].NearestNeighbor(p)
			if dsq < closestDsq {
				closest, closestDsq = pt, dsq
			}
		}
		if l > 1 {
			d := p.Z - mid.Z
			if d*d <= closestDsq {
				pt, dsq := kdt[:l/2].NearestNeighbor(p)
				if dsq < closestDsq {
					closest, closestDsq = pt, dsq
				}
			}
		}
	}
	return closest, closestDsq
}
