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

// Package align registers an observation onto a template so that the same
// pixel coordinate refers to the same sky coordinate in both, by either a
// feature-based rigid transform or a WCS-to-WCS reprojection.
package align

import (
	"fmt"
	"math"

	"github.com/278261631/local-kats-sub000/internal/fitsimage"
	"github.com/278261631/local-kats-sub000/internal/geom"
	"github.com/278261631/local-kats-sub000/internal/starfind"
	"github.com/278261631/local-kats-sub000/internal/stats"
	"github.com/278261631/local-kats-sub000/internal/wcs"
)

// Method names the alignment strategy actually used, including fallbacks.
type Method string

const (
	MethodWCS        Method = "wcs"
	MethodRigid       Method = "rigid"
	MethodSimilarity Method = "similarity"
)

// Result holds aligned observation data plus the effective overlap mask.
type Result struct {
	Aligned     *fitsimage.Image
	OverlapMask []uint8
	Method      Method
	Residual    float32
}

const (
	rigidReprojectionThresholdPx = 3.0
	wcsMinOverlapFraction        = 0.10
	wcsMaxScaleRatioDeviation    = 0.20
	wcsMaxCenterSeparationDeg    = 1.0
	pixelValidEpsilon            = 1e-6
)

// ByRigid detects bright point sources in both images and estimates a
// transform mapping obs onto ref's pixel grid. The fit is a general affine
// transform (all six terms refined freely); it is not constrained to
// rotation+translation, and there is no second, similarity-only attempt:
// alignment fails when the best fit's residual exceeds
// rigidReprojectionThresholdPx.
func ByRigid(ref, obs *fitsimage.Image) (Result, error) {
	refStars, _, _ := starfind.Find(ref.Data, ref.Naxisn[0], ref.Stats.Location(), ref.Stats.Scale(), starfind.DefaultParams())
	obsStars, _, _ := starfind.Find(obs.Data, obs.Naxisn[0], obs.Stats.Location(), obs.Stats.Scale(), starfind.DefaultParams())
	if len(refStars) < 4 || len(obsStars) < 4 {
		return Result{}, fmt.Errorf("align: rigid: too few point sources (ref=%d obs=%d)", len(refStars), len(obsStars))
	}

	aligner := NewRigidAligner(ref.Naxisn, refStars, 12)
	trans, residual, err := aligner.Align(obs.Naxisn, obsStars)
	if err != nil {
		return Result{}, fmt.Errorf("align: rigid: %w", err)
	}
	if residual > rigidReprojectionThresholdPx {
		return Result{}, fmt.Errorf("align: rigid: residual %.2fpx exceeds threshold", residual)
	}

	dx, dy, rot, scale := trans.Decompose()
	ref.AppendHistoryTimestamped("ALIGN rigid dx=%.2f dy=%.2f rot=%.3fdeg scale=%.4f residual=%.3fpx",
		dx, dy, rot, scale, residual)

	aligned, mask, err := reproject(obs, ref.Naxisn, trans)
	if err != nil {
		return Result{}, err
	}
	return Result{Aligned: aligned, OverlapMask: mask, Method: MethodRigid, Residual: residual}, nil
}

// ByWCS requires both headers carry a usable celestial WCS, validates scale
// and center-separation agreement, then reprojects obs onto ref's grid pixel
// by pixel via sky coordinates.
func ByWCS(ref, obs *fitsimage.Image) (Result, error) {
	if !ref.Header.HasWCS() || !obs.Header.HasWCS() {
		return Result{}, fmt.Errorf("align: wcs: missing WCS in reference or observation header")
	}
	refWCS, err := wcs.FromHeaderValues(ref.Header.Float)
	if err != nil {
		return Result{}, fmt.Errorf("align: wcs: reference: %w", err)
	}
	obsWCS, err := wcs.FromHeaderValues(obs.Header.Float)
	if err != nil {
		return Result{}, fmt.Errorf("align: wcs: observation: %w", err)
	}

	refCenter := refWCS.PixelToSky(float64(ref.Naxisn[0])/2, float64(ref.Naxisn[1])/2)
	obsCenter := obsWCS.PixelToSky(float64(obs.Naxisn[0])/2, float64(obs.Naxisn[1])/2)
	sep := wcs.AngularSeparation(refCenter, obsCenter)
	if sep > wcsMaxCenterSeparationDeg {
		return Result{}, fmt.Errorf("align: wcs: sky center separation %.3fdeg exceeds 1deg", sep)
	}

	trans, err := TransformByWCS(refWCS, obsWCS, obs.Naxisn)
	if err != nil {
		return Result{}, fmt.Errorf("align: wcs: %w", err)
	}
	_, _, rot, scale := trans.Decompose()
	if math.Abs(scale-1) > wcsMaxScaleRatioDeviation {
		return Result{}, fmt.Errorf("align: wcs: pixel scale ratio %.3f outside ±20%% of 1", scale)
	}
	ref.AppendHistoryTimestamped("ALIGN wcs rot=%.3fdeg scale=%.4f sep=%.4fdeg (logged, not gating)", rot, scale, sep)

	aligned, mask, err := reproject(obs, ref.Naxisn, trans)
	if err != nil {
		return Result{}, err
	}

	overlap := overlapFraction(mask)
	if overlap < wcsMinOverlapFraction {
		return Result{}, fmt.Errorf("align: wcs: overlap fraction %.3f below 10%%", overlap)
	}
	return Result{Aligned: aligned, OverlapMask: mask, Method: MethodWCS}, nil
}

// Align runs method (one of "rigid" or "wcs") and falls through to the
// other method on failure, per spec scenario 3/4: a solver-disabled run
// tries rigid first; a WCS validation failure falls back to rigid; if both
// fail the caller should surface alignment_failed.
func Align(ref, obs *fitsimage.Image, method string) (Result, error) {
	switch method {
	case "wcs":
		res, err := ByWCS(ref, obs)
		if err == nil {
			return res, nil
		}
		return ByRigid(ref, obs)
	case "rigid":
		res, err := ByRigid(ref, obs)
		if err == nil {
			return res, nil
		}
		return ByWCS(ref, obs)
	default:
		return Result{}, fmt.Errorf("align: unknown method %q", method)
	}
}

// reproject projects obs onto destNaxisn via trans, using NaN as the
// out-of-bounds sentinel (permitted on aligned data per the data model),
// then derives the uint8 overlap mask and zeroes the sentinel back to 0.
func reproject(obs *fitsimage.Image, destNaxisn []int32, trans geom.Transform2D) (*fitsimage.Image, []uint8, error) {
	aligned, err := obs.Project(destNaxisn, trans, float32(math.NaN()))
	if err != nil {
		return nil, nil, fmt.Errorf("align: reprojecting: %w", err)
	}
	mask := make([]uint8, len(aligned.Data))
	for i, v := range aligned.Data {
		if math.IsNaN(float64(v)) {
			aligned.Data[i] = 0
		} else {
			mask[i] = 1
		}
	}
	return aligned, mask, nil
}

func overlapFraction(mask []uint8) float64 {
	if len(mask) == 0 {
		return 0
	}
	n := 0
	for _, m := range mask {
		if m != 0 {
			n++
		}
	}
	return float64(n) / float64(len(mask))
}

// basicLocationScale is a stand-in for callers lacking a precomputed Stats,
// mirroring the teacher's inline LSESCMedianQn default.
func basicLocationScale(data []float32) (float32, float32) {
	s := stats.NewStats(data, 0)
	return s.Location(), s.Scale()
}
