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

import (
	"math"

	"github.com/278261631/local-kats-sub000/internal/geom"
)

// traceContours labels each 8-connected component of mask and traces its
// outer boundary via Moore-neighbor tracing, reimplementing the role of
// cv2.findContours natively since no cv2 binding is available. Returns one
// contour per component plus a parallel label image (0=background,
// i+1=index into the returned contour slice).
func traceContours(mask []bool, width, height int32) (contours [][]geom.Point2D, labels []int32) {
	labels = make([]int32, len(mask))
	var starts []geom.Point2D

	next := int32(1)
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			i := y*width + x
			if !mask[i] || labels[i] != 0 {
				continue
			}
			floodFill(mask, labels, width, height, x, y, next)
			starts = append(starts, geom.Point2D{X: float32(x), Y: float32(y)})
			next++
		}
	}

	contours = make([][]geom.Point2D, len(starts))
	for idx, start := range starts {
		contours[idx] = mooreBoundary(mask, width, height, int32(start.X), int32(start.Y))
	}
	return contours, labels
}

// floodFill assigns id to every pixel 8-connected to (x0,y0) through set
// mask pixels, using an explicit stack to avoid recursion depth limits.
func floodFill(mask []bool, labels []int32, width, height, x0, y0, id int32) {
	type pt struct{ x, y int32 }
	stack := []pt{{x0, y0}}
	labels[y0*width+x0] = id
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := p.x+dx, p.y+dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				i := ny*width + nx
				if !mask[i] || labels[i] != 0 {
					continue
				}
				labels[i] = id
				stack = append(stack, pt{nx, ny})
			}
		}
	}
}

// mooreBoundary traces the outer boundary of the foreground region
// containing (x0,y0), which must be its topmost, then leftmost pixel, via
// Moore-neighbor tracing, stopping the first time the trace returns to the
// start pixel.
func mooreBoundary(mask []bool, width, height, x0, y0 int32) []geom.Point2D {
	dirs := [8][2]int32{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	set := func(x, y int32) bool {
		return x >= 0 && x < width && y >= 0 && y < height && mask[y*width+x]
	}

	boundary := []geom.Point2D{{X: float32(x0), Y: float32(y0)}}
	if !hasNeighborOutside(mask, width, height, x0, y0) {
		return boundary
	}

	cx, cy := x0, y0
	backtrack := 4 // pretend we arrived from the west, a background pixel
	startX, startY := x0, y0

	for steps := 0; steps < 4*len(mask)+8; steps++ {
		found := false
		for k := 0; k < 8; k++ {
			d := (backtrack + 1 + k) % 8
			nx, ny := cx+dirs[d][0], cy+dirs[d][1]
			if set(nx, ny) {
				cx, cy = nx, ny
				backtrack = (d + 4) % 8 // direction back to the pixel we came from
				found = true
				break
			}
		}
		if !found {
			break
		}
		if cx == startX && cy == startY {
			break
		}
		boundary = append(boundary, geom.Point2D{X: float32(cx), Y: float32(cy)})
	}
	return boundary
}

// hasNeighborOutside reports whether (x,y) has any 4-connected neighbor
// that is background or out of bounds, i.e. whether it sits on the region's
// boundary at all (a fully interior single pixel has no boundary to trace).
func hasNeighborOutside(mask []bool, width, height, x, y int32) bool {
	offs := [4][2]int32{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for _, o := range offs {
		nx, ny := x+o[0], y+o[1]
		if nx < 0 || nx >= width || ny < 0 || ny >= height || !mask[ny*width+nx] {
			return true
		}
	}
	return false
}

// contourPerimeter returns the closed-path length of the contour.
func contourPerimeter(contour []geom.Point2D) float32 {
	if len(contour) < 2 {
		return 0
	}
	sum := float32(0)
	for i := range contour {
		a := contour[i]
		b := contour[(i+1)%len(contour)]
		dx, dy := a.X-b.X, a.Y-b.Y
		sum += float32(math.Sqrt(float64(dx*dx + dy*dy)))
	}
	return sum
}

// convexHull returns the convex hull of points via the monotone chain
// algorithm, in counterclockwise order.
func convexHull(points []geom.Point2D) []geom.Point2D {
	pts := make([]geom.Point2D, len(points))
	copy(pts, points)
	if len(pts) < 3 {
		return pts
	}
	sortPoints(pts)

	cross := func(o, a, b geom.Point2D) float32 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	lower := make([]geom.Point2D, 0, len(pts))
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	upper := make([]geom.Point2D, 0, len(pts))
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// sortPoints sorts points lexicographically by (X,Y), the order monotone
// chain requires.
func sortPoints(pts []geom.Point2D) {
	for i := 1; i < len(pts); i++ {
		for j := i; j > 0 && less(pts[j], pts[j-1]); j-- {
			pts[j], pts[j-1] = pts[j-1], pts[j]
		}
	}
}

func less(a, b geom.Point2D) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

// approxPolyDP simplifies contour via the Ramer-Douglas-Peucker algorithm
// with tolerance eps, mirroring cv2.approxPolyDP on a closed contour.
func approxPolyDP(contour []geom.Point2D, eps float32) []geom.Point2D {
	if len(contour) < 3 {
		return contour
	}
	if eps <= 0 {
		eps = 1
	}
	// Split the closed contour at its two most distant points to get two
	// open polylines, simplify each, then rejoin.
	i0, i1 := farthestPair(contour)
	a := rdp(wrap(contour, i0, i1), eps)
	b := rdp(wrap(contour, i1, i0), eps)
	return append(a[:len(a)-1], b...)
}

func farthestPair(contour []geom.Point2D) (int, int) {
	best := float32(-1)
	bi, bj := 0, 0
	for i := 0; i < len(contour); i++ {
		for j := i + 1; j < len(contour); j++ {
			d := geom.Dist2DSquared(contour[i], contour[j])
			if d > best {
				best, bi, bj = d, i, j
			}
		}
	}
	return bi, bj
}

// wrap returns the closed contour's points from index i0 to i1 inclusive,
// walking forward with wraparound.
func wrap(contour []geom.Point2D, i0, i1 int) []geom.Point2D {
	n := len(contour)
	var out []geom.Point2D
	for i := i0; ; i = (i + 1) % n {
		out = append(out, contour[i])
		if i == i1 {
			break
		}
	}
	return out
}

// rdp simplifies an open polyline by the Ramer-Douglas-Peucker algorithm.
func rdp(pts []geom.Point2D, eps float32) []geom.Point2D {
	if len(pts) < 3 {
		return pts
	}
	first, last := pts[0], pts[len(pts)-1]
	maxDist := float32(-1)
	maxIdx := 0
	for i := 1; i < len(pts)-1; i++ {
		d := pointLineDistance(pts[i], first, last)
		if d > maxDist {
			maxDist, maxIdx = d, i
		}
	}
	if maxDist <= eps {
		return []geom.Point2D{first, last}
	}
	left := rdp(pts[:maxIdx+1], eps)
	right := rdp(pts[maxIdx:], eps)
	return append(left[:len(left)-1], right...)
}

func pointLineDistance(p, a, b geom.Point2D) float32 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := float32(math.Sqrt(float64(dx*dx + dy*dy)))
	if length < 1e-8 {
		dpx, dpy := p.X-a.X, p.Y-a.Y
		return float32(math.Sqrt(float64(dpx*dpx + dpy*dpy)))
	}
	num := dy*p.X - dx*p.Y + b.X*a.Y - b.Y*a.X
	if num < 0 {
		num = -num
	}
	return num / length
}
