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

// Package align computes the geometric transform that maps a target image's
// pixel grid onto a reference image's pixel grid, either by matching
// triangles of detected stars (rigid method) or by composing each image's
// WCS solution (wcs method).
package align

import (
	"fmt"
	"math"
	"sort"

	"github.com/278261631/local-kats-sub000/internal/geom"
	"github.com/278261631/local-kats-sub000/internal/starfind"
	"gonum.org/v1/gonum/optimize"
)

const minDistanceForAlignmentStars float32 = 1.0 / 20.0

// triangle represents the distances between three reference stars, which
// are translation and rotation invariant, plus their indices.
type triangle struct {
	DistAB, DistAC, DistBC float32
	A, B, C                int32
}

// RigidAligner matches star triangles between a fixed reference frame and
// successive target frames to recover a similarity/affine transform.
type RigidAligner struct {
	naxisn       []int32
	refStars     []starfind.Star
	refTree      geom.KDTree2
	refTriangles []triangle
	refTriTree   kdTree3
	k            int32
}

// NewRigidAligner builds an aligner against the given reference stars,
// detected on an image of shape naxisn. k controls how many of the
// brightest, well-separated stars are used to build matching triangles.
func NewRigidAligner(naxisn []int32, refStars []starfind.Star, k int32) *RigidAligner {
	tree := make(geom.KDTree2, len(refStars))
	for i, s := range refStars {
		tree[i] = geom.Point2D{X: s.X, Y: s.Y}
	}
	tree.Make()

	minLength := float32(naxisn[1]) * minDistanceForAlignmentStars
	indices := pickBrightestDistant(refStars, minLength, k)
	tris := generateTriangles(refStars, indices, 1.0)
	triTree := make(kdTree3, len(tris))
	for i, t := range tris {
		triTree[i] = triDist{t.DistAB, t.DistAC, t.DistBC, int32(i)}
	}
	triTree.Make()

	return &RigidAligner{naxisn, refStars, tree, tris, triTree, k}
}

// Align finds the affine transform mapping stars (detected on an image of
// shape naxisn) onto the aligner's reference frame, along with the residual
// after refinement: the square root of the summed squared star-to-reference
// distances, divided by the number of matched stars.
func (a *RigidAligner) Align(naxisn []int32, stars []starfind.Star) (trans geom.Transform2D, residual float32, err error) {
	minLength := float32(a.naxisn[1]) * minDistanceForAlignmentStars
	indices := pickBrightestDistant(stars, minLength, a.k)
	scaleFactor := float32(a.naxisn[0]) / float32(naxisn[0])
	triangles := generateTriangles(stars, indices, scaleFactor)
	matches := a.closestTriangleMatches(triangles)
	trans, residual, err = a.findBestMatch(matches, triangles, stars)
	return trans, residual, err
}

type match struct {
	Dist        float32
	TriIndex    int32
	RefTriIndex int32
}

func pickBrightestDistant(stars []starfind.Star, minLength float32, k int32) []int {
	indices := make([]int, k)
	i, s := 0, 0
outer:
	for ; i < len(indices) && s < len(stars); s++ {
		starA := stars[s]
		for j := 0; j < i; j++ {
			starB := stars[indices[j]]
			dAB := geom.Dist2D(geom.Point2D{X: starA.X, Y: starA.Y}, geom.Point2D{X: starB.X, Y: starB.Y})
			if dAB < minLength {
				continue outer
			}
		}
		indices[i] = s
		i++
	}
	return indices[0:i]
}

func generateTriangles(stars []starfind.Star, indices []int, scaleFactor float32) []triangle {
	var tris []triangle
	for _, a := range indices {
		starA := stars[a]
		for _, b := range indices {
			if a == b {
				continue
			}
			starB := stars[b]
			dAB := geom.Dist2D(
				geom.Point2D{X: starA.X * scaleFactor, Y: starA.Y * scaleFactor},
				geom.Point2D{X: starB.X * scaleFactor, Y: starB.Y * scaleFactor})
			for _, c := range indices {
				if a == c || b == c {
					continue
				}
				starC := stars[c]
				dAC := geom.Dist2D(
					geom.Point2D{X: starA.X * scaleFactor, Y: starA.Y * scaleFactor},
					geom.Point2D{X: starC.X * scaleFactor, Y: starC.Y * scaleFactor})
				dBC := geom.Dist2D(
					geom.Point2D{X: starB.X * scaleFactor, Y: starB.Y * scaleFactor},
					geom.Point2D{X: starC.X * scaleFactor, Y: starC.Y * scaleFactor})

				if dAB < dAC && dAC < dBC {
					tris = append(tris, triangle{dAB, dAC, dBC, int32(a), int32(b), int32(c)})
				}
			}
		}
	}
	return tris
}

func (a *RigidAligner) closestTriangleMatches(triangles []triangle) []match {
	matches := make([]match, len(triangles))
	for i, tri := range triangles {
		pt := triDist{tri.DistAB, tri.DistAC, tri.DistBC, 0}
		closest, distSquared := a.refTriTree.NearestNeighbor(pt)
		matches[i] = match{distSquared, int32(i), closest.TriIdx}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Dist < matches[j].Dist })

	k := a.k
	if k > int32(len(matches)) {
		k = int32(len(matches))
	}
	return matches[:k]
}

func (a *RigidAligner) findBestMatch(matches []match, triangles []triangle, stars []starfind.Star) (geom.Transform2D, float32, error) {
	bestTrans := geom.Transform2D{}
	bestResidual := float32(math.MaxFloat32)
	found := false

	const distSquaredLimit = float32(8.0 * 8.0)
	const earlyAbortResidual = float32(0.01)

	for _, m := range matches {
		tri := triangles[m.TriIndex]
		p1 := geom.Point2D{X: stars[tri.A].X, Y: stars[tri.A].Y}
		p2 := geom.Point2D{X: stars[tri.B].X, Y: stars[tri.B].Y}
		p3 := geom.Point2D{X: stars[tri.C].X, Y: stars[tri.C].Y}
		refTri := a.refTriangles[m.RefTriIndex]
		p1p := geom.Point2D{X: a.refStars[refTri.A].X, Y: a.refStars[refTri.A].Y}
		p2p := geom.Point2D{X: a.refStars[refTri.B].X, Y: a.refStars[refTri.B].Y}
		p3p := geom.Point2D{X: a.refStars[refTri.C].X, Y: a.refStars[refTri.C].Y}
		trans, err := geom.NewTransform2D(p1, p2, p3, p1p, p2p, p3p)
		if err != nil {
			continue
		}

		numMatches := 0
		refPoints := make([]geom.Point2D, len(stars))
		for i, star := range stars {
			p := geom.Point2D{X: star.X, Y: star.Y}
			proj := trans.Apply(p)
			refPoint, distSquared := a.refTree.NearestNeighbor(proj)
			if distSquared < distSquaredLimit {
				refPoints[i] = refPoint
				numMatches++
			} else {
				refPoints[i] = geom.Point2D{X: float32(math.NaN()), Y: float32(math.NaN())}
			}
		}
		if numMatches < len(stars)/3 {
			continue
		}

		x0 := []float64{float64(trans.A), float64(trans.B), float64(trans.C), float64(trans.D), float64(trans.E), float64(trans.F)}
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				tr := geom.Transform2D{A: float32(x[0]), B: float32(x[1]), C: float32(x[2]), D: float32(x[3]), E: float32(x[4]), F: float32(x[5])}

				starsMatched := int32(0)
				distSquaredSum := float32(0)
				for i, star := range stars {
					p := geom.Point2D{X: star.X, Y: star.Y}
					proj := tr.Apply(p)

					refPoint := refPoints[i]
					if !math.IsNaN(float64(refPoint.X)) {
						distSquared := geom.Dist2DSquared(proj, refPoint)
						distSquaredSum += distSquared
						starsMatched++
					}
				}
				return math.Sqrt(float64(distSquaredSum)) / float64(starsMatched)
			},
		}
		result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
		if err != nil {
			continue
		}

		x := result.X
		trans = geom.Transform2D{A: float32(x[0]), B: float32(x[1]), C: float32(x[2]), D: float32(x[3]), E: float32(x[4]), F: float32(x[5])}
		residualError := float32(result.F)
		if residualError < bestResidual {
			bestTrans = trans
			bestResidual = residualError
			found = true

			if bestResidual < earlyAbortResidual {
				return bestTrans, bestResidual, nil
			}
		}
	}

	if !found {
		return geom.Transform2D{}, 0, fmt.Errorf("align: no triangle match converged to a usable transform")
	}
	return bestTrans, bestResidual, nil
}
