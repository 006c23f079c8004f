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

// Package config holds the pipeline's run-time parameters, populated from
// CLI flags (see cmd/katsdiff). Persisted defaults in internal/configstore
// are not consulted when a Config is built.
package config

import (
	"fmt"
	"time"

	"github.com/pbnjay/memory"
)

// bytesPerInFlightFrame estimates worst-case per-job memory: reference and
// observation frames plus aligned, difference, and stretched copies, each
// held as float32 pixels. Sized against a 4k x 4k frame, the largest tile
// size the region catalogs in practice produce.
const bytesPerInFlightFrame = int64(5) * 4096 * 4096 * 4

// Config is a single run's parameters.
type Config struct {
	Date          time.Time
	Telescope     string // empty = all telescopes
	Region        string // empty = all regions
	DownloadDir   string
	TemplateDir   string
	DiffOutputDir string

	ThreadCount int
	MaxWorkers  int
	RetryTimes  int
	TimeoutSec  int

	NoASTAP bool // disables internal/platesolver, forces rigid-first alignment

	StretchMode string // "percentile" (default) or "peak", selects internal/stretch's Params.Mode

	Files []string // explicit file list for the batch/console driver, bypassing internal/scanner
}

// Default returns a Config with the reference implementation's defaults for
// everything but Date, which the caller must always supply.
func Default() Config {
	return Config{
		ThreadCount: 4,
		MaxWorkers:  4,
		RetryTimes:  3,
		TimeoutSec:  120,
		StretchMode: "percentile",
	}
}

// Validate checks that the minimum required fields are present.
func (c Config) Validate() error {
	if c.Date.IsZero() {
		return fmt.Errorf("config: --date is required")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("config: --download-dir is required")
	}
	if c.TemplateDir == "" {
		return fmt.Errorf("config: --template-dir is required")
	}
	if c.DiffOutputDir == "" {
		return fmt.Errorf("config: --diff-output-dir is required")
	}
	if c.ThreadCount < 1 {
		return fmt.Errorf("config: --thread-count must be >= 1")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("config: --max-workers must be >= 1")
	}
	if c.StretchMode != "percentile" && c.StretchMode != "peak" {
		return fmt.Errorf("config: --stretch-mode must be 'percentile' or 'peak'")
	}
	return nil
}

// Timeout returns TimeoutSec as a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// ClampWorkersToMemory lowers MaxWorkers so the Differ/Detect stages' peak
// concurrent frame set fits in physical memory, returning the possibly
// reduced config and whether a reduction occurred.
func (c Config) ClampWorkersToMemory() (Config, bool) {
	total := int64(memory.TotalMemory())
	if total <= 0 {
		return c, false
	}
	availableFrames := int(total / bytesPerInFlightFrame)
	if availableFrames < 1 {
		availableFrames = 1
	}
	if c.MaxWorkers <= availableFrames {
		return c, false
	}
	c.MaxWorkers = availableFrames
	return c, true
}
