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

package observation

import "testing"

func TestParseFullName(t *testing.T) {
	d, err := Parse("GY5_K096-1_20260115_031245.fits")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Telescope != "GY5" {
		t.Errorf("Telescope = %q, want GY5", d.Telescope)
	}
	if d.Region != "K096" {
		t.Errorf("Region = %q, want K096", d.Region)
	}
	if d.RegionIndex != 1 {
		t.Errorf("RegionIndex = %d, want 1", d.RegionIndex)
	}
	if d.Timestamp.IsZero() {
		t.Error("Timestamp should be populated")
	}
	if got := d.RegionIndexID(); got != "K096-1" {
		t.Errorf("RegionIndexID() = %q, want K096-1", got)
	}
}

func TestParseWithoutTimestamp(t *testing.T) {
	d, err := Parse("GY5_K096-1.fits")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !d.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero value", d.Timestamp)
	}
}

func TestParseStripsDirectory(t *testing.T) {
	d, err := Parse("/data/2026/GY5_K096-1_20260115_031245.fits")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Telescope != "GY5" || d.Region != "K096" {
		t.Errorf("Parse did not strip directory correctly: %+v", d)
	}
}

func TestParseRejectsUnrecognizedName(t *testing.T) {
	if _, err := Parse("not_a_valid_observation.fits"); err == nil {
		t.Error("expected an error for an unparsable filename")
	}
}
