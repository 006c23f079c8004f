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

package differ

import (
	"testing"

	"github.com/278261631/local-kats-sub000/internal/fitsimage"
)

func constImage(naxisn []int32, v float32) *fitsimage.Image {
	data := make([]float32, naxisn[0]*naxisn[1])
	for i := range data {
		data[i] = v
	}
	return fitsimage.NewImageFromNaxisn(naxisn, data)
}

func TestBuildDifferenceNeverNegative(t *testing.T) {
	naxisn := []int32{16, 16}
	ref := constImage(naxisn, 100)
	aligned := constImage(naxisn, 100)
	// punch a brighter and a dimmer region so both source-brightened and
	// source-faded pixels are exercised.
	for y := int32(4); y < 8; y++ {
		for x := int32(4); x < 8; x++ {
			aligned.Data[y*16+x] = 500 // brightened
		}
	}
	for y := int32(10); y < 14; y++ {
		for x := int32(10); x < 14; x++ {
			ref.Data[y*16+x] = 500 // faded in aligned relative to ref
		}
	}

	diff, err := BuildDifference(ref, aligned, 0) // no blur, isolate the subtract+abs step
	if err != nil {
		t.Fatalf("BuildDifference: %v", err)
	}
	for i, v := range diff.Data.Data {
		if v < 0 {
			t.Fatalf("diff.Data.Data[%d] = %v, want >= 0 (unsigned magnitude)", i, v)
		}
	}

	brightenedIdx := 5*16 + 5
	fadedIdx := 11*16 + 11
	flatIdx := 0
	if diff.Data.Data[brightenedIdx] <= diff.Data.Data[flatIdx] {
		t.Errorf("brightened region did not register a larger difference than the flat background")
	}
	if diff.Data.Data[fadedIdx] <= diff.Data.Data[flatIdx] {
		t.Errorf("faded region did not register a larger difference than the flat background (abs() should recover it)")
	}
}

func TestBuildDifferenceRejectsShapeMismatch(t *testing.T) {
	ref := constImage([]int32{16, 16}, 100)
	aligned := constImage([]int32{8, 8}, 100)
	if _, err := BuildDifference(ref, aligned, 1); err == nil {
		t.Error("expected an error for mismatched shapes")
	}
}

func TestBuildDifferenceZerosNonOverlapRegion(t *testing.T) {
	naxisn := []int32{8, 8}
	ref := constImage(naxisn, 100)
	aligned := constImage(naxisn, 100)
	// the left half never reaches overlapEpsilon in ref, so it falls outside
	// the overlap mask regardless of what aligned holds there.
	for y := int32(0); y < 8; y++ {
		for x := int32(0); x < 4; x++ {
			ref.Data[y*8+x] = 0
		}
	}

	diff, err := BuildDifference(ref, aligned, 0)
	if err != nil {
		t.Fatalf("BuildDifference: %v", err)
	}
	for y := int32(0); y < 8; y++ {
		for x := int32(0); x < 4; x++ {
			idx := y*8 + x
			if diff.OverlapMask[idx] != 0 {
				t.Fatalf("OverlapMask[%d] = %d, want 0 outside the overlap", idx, diff.OverlapMask[idx])
			}
			if diff.Data.Data[idx] != 0 {
				t.Fatalf("Data.Data[%d] = %v, want 0 outside the overlap", idx, diff.Data.Data[idx])
			}
		}
	}

	if _, err := BuildDifference(constImage(naxisn, 0), constImage(naxisn, 0), 1); err == nil {
		t.Error("expected an error when ref and aligned share no overlap at all")
	}
}

func TestNormalizeToUnitRangeClampsToZeroOne(t *testing.T) {
	data := []float32{0, 10, 20, 30, 1000} // 1000 is a percentile outlier
	mask := []uint8{1, 1, 1, 1, 1}
	out, err := normalizeToUnitRange(data, mask)
	if err != nil {
		t.Fatalf("normalizeToUnitRange: %v", err)
	}
	for i, v := range out {
		if v < 0 || v > 1 {
			t.Errorf("out[%d] = %v, want in [0,1]", i, v)
		}
	}
}
