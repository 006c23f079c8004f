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

package main

import "testing"

func TestMatchesFilterNoFilterAdmitsEverything(t *testing.T) {
	if !matchesFilter("GY5_K096-1_20260115_031245.fits", "", "") {
		t.Error("empty telescope/region filter should admit every parsable name")
	}
}

func TestMatchesFilterByTelescope(t *testing.T) {
	name := "GY5_K096-1_20260115_031245.fits"
	if !matchesFilter(name, "GY5", "") {
		t.Error("expected a match on telescope GY5")
	}
	if matchesFilter(name, "GY6", "") {
		t.Error("did not expect a match on telescope GY6")
	}
}

func TestMatchesFilterByRegion(t *testing.T) {
	name := "GY5_K096-1_20260115_031245.fits"
	if !matchesFilter(name, "", "K096") {
		t.Error("expected a match on region K096")
	}
	if matchesFilter(name, "", "K097") {
		t.Error("did not expect a match on region K097")
	}
}

func TestMatchesFilterPassesUnparsableNamesThroughWithNoFilter(t *testing.T) {
	// Submit performs its own parse and records a proper failure for names
	// like this; discovery should not silently drop them first.
	if !matchesFilter("not_a_valid_name.fits", "", "") {
		t.Error("an unparsable filename should pass through when no filter is set")
	}
}

func TestMatchesFilterRejectsUnparsableNamesWhenFilterSet(t *testing.T) {
	if matchesFilter("not_a_valid_name.fits", "GY5", "") {
		t.Error("an unparsable filename cannot satisfy a non-empty telescope filter")
	}
}

func TestMatchesFilterCombinesTelescopeAndRegion(t *testing.T) {
	name := "GY5_K096-1_20260115_031245.fits"
	if !matchesFilter(name, "GY5", "K096") {
		t.Error("expected a match when both telescope and region are satisfied")
	}
	if matchesFilter(name, "GY5", "K097") {
		t.Error("did not expect a match when region disagrees")
	}
}
