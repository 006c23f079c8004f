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

// Package geom provides 2D point and affine-transform primitives shared
// by star detection, alignment and contour analysis.
package geom

import (
	"errors"
	"fmt"
	"math"
)

// Point2D is a 2-dimensional point with floating point coordinates.
type Point2D struct {
	X float32
	Y float32
}

// Rect2D is a 2-dimensional rectangle with floating point coordinates.
type Rect2D struct {
	A Point2D
	B Point2D
}

// Transform2D is an affine 2D coordinate transformation:
//
//	x' = A*x + B*y + C
//	y' = D*x + E*y + F
type Transform2D struct {
	A float32
	B float32
	C float32
	D float32
	E float32
	F float32
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

func (r Rect2D) String() string {
	return fmt.Sprintf("(%v, %v)", r.A, r.B)
}

func (t Transform2D) String() string {
	return fmt.Sprintf("x'=%.5gx %+.5gy %+.2g, y'=%.5gx %+.5gy %+.2g",
		t.A, t.B, t.C, t.D, t.E, t.F)
}

// Dist2D returns the euclidian distance between a and b.
func Dist2D(a, b Point2D) float32 {
	return float32(math.Sqrt(float64(Dist2DSquared(a, b))))
}

// Dist2DSquared returns the squared euclidian distance between a and b.
func Dist2DSquared(a, b Point2D) float32 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

// Add2D adds two points componentwise.
func Add2D(a, b Point2D) Point2D {
	return Point2D{a.X + b.X, a.Y + b.Y}
}

// Sub2D subtracts b from a componentwise.
func Sub2D(a, b Point2D) Point2D {
	return Point2D{a.X - b.X, a.Y - b.Y}
}

// IdentityTransform2D returns the identity transform.
func IdentityTransform2D() Transform2D {
	return Transform2D{1, 0, 0, 0, 1, 0}
}

// NewTransform2D computes the 2D affine transform mapping p1,p2,p3 (first
// coordinate system) onto p1p,p2p,p3p (second coordinate system).
func NewTransform2D(p1, p2, p3, p1p, p2p, p3p Point2D) (Transform2D, error) {
	a := ((p3p.X-p1p.X)*(p2.Y-p1.Y) - (p2p.X-p1p.X)*(p3.Y-p1.Y)) /
		((p2.Y-p1.Y)*(p3.X-p1.X) - (p2.X-p1.X)*(p3.Y-p1.Y))

	b := ((p2p.X - p1p.X) - a*(p2.X-p1.X)) / (p2.Y - p1.Y)

	c := p1p.X - a*p1.X - b*p1.Y

	d := ((p3p.Y-p1p.Y)*(p2.Y-p1.Y) - (p2p.Y-p1p.Y)*(p3.Y-p1.Y)) /
		((p2.Y-p1.Y)*(p3.X-p1.X) - (p2.X-p1.X)*(p3.Y-p1.Y))

	e := ((p2p.Y - p1p.Y) - d*(p2.X-p1.X)) / (p2.Y - p1.Y)

	f := p1p.Y - d*p1.X - e*p1.Y

	if math.IsInf(float64(a), 0) || math.IsInf(float64(b), 0) || math.IsInf(float64(d), 0) || math.IsInf(float64(e), 0) {
		return Transform2D{}, errors.New("degenerate triangle: divide by zero")
	}
	return Transform2D{a, b, c, d, e, f}, nil
}

// Apply applies t to p.
func (t *Transform2D) Apply(p Point2D) Point2D {
	xP := t.A*p.X + t.B*p.Y + t.C
	yP := t.D*p.X + t.E*p.Y + t.F
	return Point2D{xP, yP}
}

// ApplySlice applies t to every point in ps.
func (t *Transform2D) ApplySlice(ps []Point2D) []Point2D {
	pPs := make([]Point2D, len(ps))
	for i, p := range ps {
		pPs[i] = t.Apply(p)
	}
	return pPs
}

// Invert returns the inverse transform, or an error if t is singular.
func (t *Transform2D) Invert() (Transform2D, error) {
	if epsilon := t.B*t.D - t.A*t.E; epsilon < 1e-8 && -epsilon < 1e-8 {
		return Transform2D{}, fmt.Errorf("matrix has no inverse, epsilon=%g", epsilon)
	}
	return Transform2D{
		A: -t.E / (t.B*t.D - t.A*t.E),
		B: t.B / (t.B*t.D - t.A*t.E),
		C: (t.C*t.E - t.B*t.F) / (t.B*t.D - t.A*t.E),
		D: -t.D / (t.A*t.E - t.B*t.D),
		E: t.A / (t.A*t.E - t.B*t.D),
		F: (t.C*t.D - t.A*t.F) / (t.A*t.E - t.B*t.D),
	}, nil
}

// Decompose extracts an approximate (dx, dy, rotationDegrees, scale) from t,
// assuming t is a similarity transform (rotation + uniform scale + translation).
func (t Transform2D) Decompose() (dx, dy, rotationDeg, scale float64) {
	scale = math.Sqrt(float64(t.A)*float64(t.A) + float64(t.D)*float64(t.D))
	rotationDeg = math.Atan2(float64(t.D), float64(t.A)) * 180 / math.Pi
	dx = float64(t.C)
	dy = float64(t.F)
	return
}
