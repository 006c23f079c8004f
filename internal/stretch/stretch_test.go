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

package stretch

import "testing"

func uniformRamp(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return data
}

func TestBlackWhitePercentileAnchorsOnMax(t *testing.T) {
	data := uniformRamp(10000) // 0..9999
	p := DefaultPercentileParams()

	black, white, err := blackWhite(data, 100, p)
	if err != nil {
		t.Fatalf("blackWhite: %v", err)
	}
	if white != 9999 {
		t.Errorf("white = %v, want the data maximum 9999", white)
	}
	wantBlack := float32(9999 * 0.9995) // p=99.95th percentile of a uniform ramp
	if diff := black - wantBlack; diff < -1 || diff > 1 {
		t.Errorf("black = %v, want close to %v", black, wantBlack)
	}
}

func TestBlackWhitePeakUsesModalBinAndTwoThirdsRule(t *testing.T) {
	// a spike of repeated zeros dominates the histogram's modal bin
	data := make([]float32, 0, 2100)
	for i := 0; i < 2000; i++ {
		data = append(data, 0)
	}
	for i := 0; i < 100; i++ {
		data = append(data, float32(i+1)*10)
	}

	black, white, err := blackWhite(data, 100, DefaultPeakParams())
	if err != nil {
		t.Fatalf("blackWhite: %v", err)
	}
	if black < -1 || black > 1 {
		t.Errorf("black = %v, want close to the modal value 0", black)
	}
	max := float32(1000)
	wantWhite := black + (max-black)*2/3
	if diff := white - wantWhite; diff < -1 || diff > 1 {
		t.Errorf("white = %v, want %v per v_lo + (max-v_lo)*2/3", white, wantWhite)
	}
}

func TestStretchFloat32ClampsToUnitRange(t *testing.T) {
	data := uniformRamp(10000)
	out, black, white, err := StretchFloat32(data, 100, DefaultPercentileParams())
	if err != nil {
		t.Fatalf("StretchFloat32: %v", err)
	}
	if white <= black {
		t.Fatalf("white <= black: %v <= %v", white, black)
	}
	for i, v := range out {
		if v < 0 || v > 1 {
			t.Fatalf("out[%d] = %v, want in [0,1]", i, v)
		}
	}
	// a value at white should clamp to 1, a value at black's index region to 0
	if out[len(out)-1] != 1 {
		t.Errorf("out[last] = %v, want 1 (>= v_hi clamps to 1)", out[len(out)-1])
	}
	if out[0] != 0 {
		t.Errorf("out[0] = %v, want 0 (< v_lo clamps to 0)", out[0])
	}
}

func TestStretchFloat32Monotone(t *testing.T) {
	data := uniformRamp(1000)
	out, _, _, err := StretchFloat32(data, 100, DefaultPercentileParams())
	if err != nil {
		t.Fatalf("StretchFloat32: %v", err)
	}
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("stretched output not monotone non-decreasing at index %d: %v < %v", i, out[i], out[i-1])
		}
	}
}
