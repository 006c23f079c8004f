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

// Package paths derives the canonical download, diff-output and cutout
// directory layout from an observation's telescope, date, region and
// filename. All functions are pure; the package holds no state.
package paths

import (
	"path/filepath"
	"strings"
	"time"
)

// Download returns the path an observation is downloaded to:
// <downloadRoot>/<telescope>/<YYYYMMDD>/<region>/<filename>.
func Download(downloadRoot, telescope string, date time.Time, region, fileName string) string {
	return filepath.Join(downloadRoot, telescope, date.Format("20060102"), region, fileName)
}

// DetectionDir returns the job's output directory for a detection run
// started at runTime:
// <diffRoot>/<telescope>/<YYYYMMDD>/<region>/<filename_without_ext>/detection_<YYYYMMDD_HHMMSS>/.
func DetectionDir(diffRoot, telescope string, date time.Time, region, fileName string, runTime time.Time) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return filepath.Join(diffRoot, telescope, date.Format("20060102"), region, stem,
		"detection_"+runTime.Format("20060102_150405"))
}

// Cutouts returns the cutouts subdirectory inside a detection directory.
func Cutouts(detectionDir string) string {
	return filepath.Join(detectionDir, "cutouts")
}
