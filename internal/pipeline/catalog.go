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
	"fmt"
	"math"
	"os"
	"time"

	"github.com/278261631/local-kats-sub000/internal/blobs"
)

// writeCatalog writes the fixed-width source catalog:
// ID X Y FLUX AREA SNR MAG FWHM ELLIP CLASS CONF RELIABILITY CLUSTER
// with a '#' comment header carrying provenance, per the on-disk format.
func writeCatalog(path, jobID string, candidates []blobs.Candidate) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pipeline: writing catalog %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprintf(w, "# katsdiff source catalog\n")
	fmt.Fprintf(w, "# job %s, generated %s\n", jobID, time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "# columns: ID X Y FLUX AREA SNR MAG FWHM ELLIP CLASS CONF RELIABILITY CLUSTER\n")
	fmt.Fprintf(w, "%-6s %10s %10s %10s %8s %10s %8s %8s %8s %8s %8s %12s %8s\n",
		"ID", "X", "Y", "FLUX", "AREA", "SNR", "MAG", "FWHM", "ELLIP", "CLASS", "CONF", "RELIABILITY", "CLUSTER")

	for i, c := range candidates {
		flux := c.MeanSignal * float32(c.Area)
		mag := magnitudeFromFlux(flux)
		fwhm := fwhmFromArea(c.Area)
		ellip := 1 - 1/maxf32(c.Circularity, 1e-3)
		if ellip < 0 {
			ellip = 0
		}
		class := "transient"
		conf := c.QualityScore / 2000
		fmt.Fprintf(w, "%-6d %10.3f %10.3f %10.3f %8d %10.3f %8.3f %8.3f %8.3f %8s %8.3f %12s %8d\n",
			i, c.X, c.Y, flux, c.Area, c.SNR, mag, fwhm, ellip, class, conf, "unreviewed", 0)
	}
	return nil
}

func magnitudeFromFlux(flux float32) float32 {
	if flux <= 0 {
		return 99.0
	}
	return float32(-2.5 * math.Log10(float64(flux)))
}

func fwhmFromArea(area int32) float32 {
	return 2 * float32(math.Sqrt(float64(area)/math.Pi))
}

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
