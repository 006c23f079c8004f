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

import "testing"

func TestScoreCandidatesClampsToTwoThousand(t *testing.T) {
	p := Params{MinArea: 2, MaxArea: 36}
	candidates := []Candidate{
		// circularity > 1 is possible on coarsely-digitized contours; squared
		// and scaled by 2000 this would exceed the spec's ceiling unclamped.
		{Area: 36, Circularity: 1.3},
	}
	scoreCandidates(candidates, p)
	if candidates[0].QualityScore > 2000 {
		t.Errorf("QualityScore = %v, want <= 2000", candidates[0].QualityScore)
	}
	if candidates[0].QualityScore != 2000 {
		t.Errorf("QualityScore = %v, want exactly 2000 for an over-range circularity at max area", candidates[0].QualityScore)
	}
}

func TestScoreCandidatesNeverNegative(t *testing.T) {
	p := Params{MinArea: 10, MaxArea: 36}
	candidates := []Candidate{{Area: 2, Circularity: 0.9}} // below MinArea, norm clamps to 0
	scoreCandidates(candidates, p)
	if candidates[0].QualityScore != 0 {
		t.Errorf("QualityScore = %v, want 0 for area below MinArea", candidates[0].QualityScore)
	}
}

func candidateSet() []Candidate {
	return []Candidate{
		{X: 1, Y: 1, QualityScore: 500, SNR: 9, AlignedSNR: 2},
		{X: 2, Y: 2, QualityScore: 1500, SNR: 3, AlignedSNR: 8},
		{X: 3, Y: 3, QualityScore: 1000, SNR: 6, AlignedSNR: 5},
	}
}

func TestSortByQualityScore(t *testing.T) {
	c := candidateSet()
	Sort(c, "quality_score")
	if c[0].QualityScore != 1500 || c[1].QualityScore != 1000 || c[2].QualityScore != 500 {
		t.Errorf("unexpected order: %+v", c)
	}
}

func TestSortBySNR(t *testing.T) {
	c := candidateSet()
	Sort(c, "snr")
	if c[0].SNR != 9 || c[1].SNR != 6 || c[2].SNR != 3 {
		t.Errorf("unexpected order: %+v", c)
	}
}

func TestSortByAlignedSNR(t *testing.T) {
	c := candidateSet()
	Sort(c, "aligned_snr")
	if c[0].AlignedSNR != 8 || c[1].AlignedSNR != 5 || c[2].AlignedSNR != 2 {
		t.Errorf("unexpected order: %+v", c)
	}
}

func TestSortTieBreaksByXThenY(t *testing.T) {
	c := []Candidate{
		{X: 2, Y: 5, QualityScore: 100},
		{X: 1, Y: 9, QualityScore: 100},
		{X: 1, Y: 1, QualityScore: 100},
	}
	Sort(c, "quality_score")
	if c[0].X != 1 || c[0].Y != 1 {
		t.Errorf("expected (1,1) first, got (%v,%v)", c[0].X, c[0].Y)
	}
	if c[1].X != 1 || c[1].Y != 9 {
		t.Errorf("expected (1,9) second, got (%v,%v)", c[1].X, c[1].Y)
	}
}

func TestApertureSignalAveragesSevenBySevenWindow(t *testing.T) {
	width, height := int32(20), int32(20)
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 1
	}
	// bump the 7x7 window around (10,10) so the aperture mean differs from
	// the background of 1s surrounding it.
	for y := int32(7); y <= 13; y++ {
		for x := int32(7); x <= 13; x++ {
			data[y*width+x] = 5
		}
	}
	got := apertureSignal(data, width, height, 10, 10, alignedApertureRadius)
	if got != 5 {
		t.Errorf("apertureSignal = %v, want 5 (fully inside the bumped window)", got)
	}
}

func TestApertureSignalClampsAtImageEdge(t *testing.T) {
	width, height := int32(10), int32(10)
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 2
	}
	// should not panic or read out of bounds near a corner
	got := apertureSignal(data, width, height, 0, 0, alignedApertureRadius)
	if got != 2 {
		t.Errorf("apertureSignal = %v, want 2", got)
	}
}
