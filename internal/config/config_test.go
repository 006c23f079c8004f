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

package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	c := Default()
	c.Date = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	c.DownloadDir = "/tmp/downloads"
	c.TemplateDir = "/tmp/templates"
	c.DiffOutputDir = "/tmp/diffs"
	return c
}

func TestValidateRequiresDate(t *testing.T) {
	c := validConfig()
	c.Date = time.Time{}
	if err := c.Validate(); err == nil {
		t.Error("expected an error when Date is zero")
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsNonPositiveWorkerCounts(t *testing.T) {
	c := validConfig()
	c.ThreadCount = 0
	if err := c.Validate(); err == nil {
		t.Error("expected an error when ThreadCount < 1")
	}

	c = validConfig()
	c.MaxWorkers = 0
	if err := c.Validate(); err == nil {
		t.Error("expected an error when MaxWorkers < 1")
	}
}

func TestValidateRejectsUnknownStretchMode(t *testing.T) {
	c := validConfig()
	c.StretchMode = "gamma"
	if err := c.Validate(); err == nil {
		t.Error("expected an error for an unknown StretchMode")
	}
}

func TestTimeout(t *testing.T) {
	c := validConfig()
	c.TimeoutSec = 30
	if got, want := c.Timeout(), 30*time.Second; got != want {
		t.Errorf("Timeout() = %v, want %v", got, want)
	}
}

func TestClampWorkersToMemoryReducesUnreasonableRequest(t *testing.T) {
	c := validConfig()
	c.MaxWorkers = 10_000_000 // no real machine can back this many in-flight frames
	clamped, reduced := c.ClampWorkersToMemory()
	if !reduced {
		t.Fatal("expected ClampWorkersToMemory to report a reduction")
	}
	if clamped.MaxWorkers >= c.MaxWorkers {
		t.Errorf("MaxWorkers = %d, want less than %d", clamped.MaxWorkers, c.MaxWorkers)
	}
	if clamped.MaxWorkers < 1 {
		t.Errorf("MaxWorkers = %d, want >= 1", clamped.MaxWorkers)
	}
}

func TestClampWorkersToMemoryLeavesModestRequestUnchanged(t *testing.T) {
	c := validConfig()
	c.MaxWorkers = 4
	clamped, reduced := c.ClampWorkersToMemory()
	if reduced {
		t.Errorf("did not expect a reduction for MaxWorkers=4, got clamped to %d", clamped.MaxWorkers)
	}
}
