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

package pipeline

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/278261631/local-kats-sub000/internal/blobs"
)

func TestWriteCatalogFormatsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.txt")

	candidates := []blobs.Candidate{
		{X: 10.5, Y: 20.25, Area: 9, Circularity: 0.9, MeanSignal: 2.0, QualityScore: 1000},
		{X: 1, Y: 1, Area: 4, Circularity: 0.5, MeanSignal: 0, QualityScore: 0},
	}
	if err := writeCatalog(path, "job-123", candidates); err != nil {
		t.Fatalf("writeCatalog: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening written catalog: %v", err)
	}
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}

	var header, dataLines int
	var sawJobID bool
	for _, l := range lines {
		if strings.HasPrefix(l, "#") {
			header++
			if strings.Contains(l, "job-123") {
				sawJobID = true
			}
			continue
		}
		if strings.Contains(l, "ID") && strings.Contains(l, "RELIABILITY") {
			continue // column header row
		}
		dataLines++
	}
	if header == 0 {
		t.Error("expected at least one '#' comment line")
	}
	if !sawJobID {
		t.Error("expected the job id to appear in a comment line")
	}
	if dataLines != len(candidates) {
		t.Errorf("got %d data rows, want %d", dataLines, len(candidates))
	}

	// second candidate has zero flux (MeanSignal=0), which must map to the
	// sentinel magnitude rather than a NaN/Inf from log10(0) or log10(negative).
	if !strings.Contains(lines[len(lines)-1], "99.000") {
		t.Errorf("expected sentinel magnitude 99.000 for a zero-flux candidate, got line %q", lines[len(lines)-1])
	}
}

func TestMagnitudeFromFlux(t *testing.T) {
	if got := magnitudeFromFlux(0); got != 99.0 {
		t.Errorf("magnitudeFromFlux(0) = %v, want 99.0", got)
	}
	if got := magnitudeFromFlux(-5); got != 99.0 {
		t.Errorf("magnitudeFromFlux(-5) = %v, want 99.0", got)
	}
	if got := magnitudeFromFlux(100); got >= 0 {
		t.Errorf("magnitudeFromFlux(100) = %v, want a negative magnitude", got)
	}
}

func TestFwhmFromArea(t *testing.T) {
	// a disc of area pi*r^2 = area should have fwhm close to 2r
	got := fwhmFromArea(4)
	if got <= 0 {
		t.Errorf("fwhmFromArea(4) = %v, want > 0", got)
	}
}
