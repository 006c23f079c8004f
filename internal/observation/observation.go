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

// Package observation parses observation filenames into their constituent
// telescope, region and timestamp fields, the identity that ties a
// downloaded frame to its template and its output directory.
package observation

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// filenamePattern matches names of the form GY5_K096-1_20260115_031245.fits,
// capturing telescope id, region, region index and an optional UTC
// timestamp segment.
var filenamePattern = regexp.MustCompile(
	`^([A-Za-z][A-Za-z0-9]*)_([A-Za-z]+[0-9]+)-([0-9]+)(?:_(\d{8})_?(\d{6})?)?`)

// Descriptor identifies an observation within a night.
type Descriptor struct {
	Telescope   string
	Region      string // tile id, e.g. "K096"
	RegionIndex int    // sub-index within the tile, e.g. 1 for "K096-1"
	Timestamp   time.Time
	FileName    string
}

// RegionIndexID returns the combined "<region>-<index>" identifier used to
// match against template filenames, e.g. "K096-1".
func (d Descriptor) RegionIndexID() string {
	return fmt.Sprintf("%s-%d", d.Region, d.RegionIndex)
}

// Parse extracts a Descriptor from an observation filename (path or bare
// name; only the base name is inspected).
func Parse(fileName string) (Descriptor, error) {
	base := fileName
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' || base[i] == '\\' {
			base = base[i+1:]
			break
		}
	}

	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return Descriptor{}, fmt.Errorf("observation: cannot parse telescope/region from %q", fileName)
	}

	idx, err := strconv.Atoi(m[3])
	if err != nil {
		return Descriptor{}, fmt.Errorf("observation: invalid region index in %q: %w", fileName, err)
	}

	d := Descriptor{
		Telescope:   m[1],
		Region:      m[2],
		RegionIndex: idx,
		FileName:    fileName,
	}

	if m[4] != "" {
		layout := "20060102"
		value := m[4]
		if m[5] != "" {
			layout += "150405"
			value += m[5]
		}
		if ts, err := time.Parse(layout, value); err == nil {
			d.Timestamp = ts.UTC()
		}
	}

	return d, nil
}
