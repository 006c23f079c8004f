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

// Package template locates the reference frame for an observation by
// matching its telescope and region against a directory of coadded
// templates.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/278261631/local-kats-sub000/internal/observation"
)

// Find locates the template matching obsFileName's telescope and region
// within templateDir. It first tries an exact telescope+region-index match
// (e.g. "GY5"+"K096-1"), then falls back to a region-only match ("K096").
// Among multiple matches, the lexicographically first file name wins.
func Find(obsFileName, templateDir string) (path string, found bool, err error) {
	desc, err := observation.Parse(obsFileName)
	if err != nil {
		return "", false, err
	}

	entries, err := os.ReadDir(templateDir)
	if err != nil {
		return "", false, fmt.Errorf("template: reading %s: %w", templateDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if match, ok := findContaining(names, desc.Telescope, desc.RegionIndexID()); ok {
		return filepath.Join(templateDir, match), true, nil
	}
	if match, ok := findContaining(names, desc.Region); ok {
		return filepath.Join(templateDir, match), true, nil
	}
	return "", false, nil
}

// findContaining returns the first (lexicographically, since names is
// pre-sorted) entry containing every token, case-insensitively.
func findContaining(names []string, tokens ...string) (string, bool) {
	for _, n := range names {
		lower := strings.ToLower(n)
		all := true
		for _, t := range tokens {
			if !strings.Contains(lower, strings.ToLower(t)) {
				all = false
				break
			}
		}
		if all {
			return n, true
		}
	}
	return "", false
}
