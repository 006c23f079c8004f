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
	"time"

	"github.com/google/uuid"

	"github.com/278261631/local-kats-sub000/internal/observation"
)

// Stage names a pipeline station a job currently occupies or has passed.
type Stage string

const (
	StageDownload   Stage = "download"
	StagePlateSolve Stage = "platesolve"
	StageDiffer     Stage = "differ"
	StageDetect     Stage = "detect"
)

// Status is a job's terminal or in-flight disposition.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusSolving     Status = "solving"
	StatusSolved      Status = "solved"
	StatusDiffering   Status = "differing"
	StatusDiffered    Status = "differed"
	StatusDetecting   Status = "detecting"
	StatusDone        Status = "done"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
)

// Job is one observation in flight through the pipeline.
type Job struct {
	ID         string // stable identifier for status/catalog correlation across stages
	Descriptor observation.Descriptor
	SourceURL  string // set when discovered via internal/scanner; empty for local files
	LocalPath  string
	TemplatePath string

	Stage  Stage
	Status Status
	Reason string // e.g. "no_template", "already-processed", or a failed Error's Error() string

	Candidates int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Snapshot is an immutable copy of a Job safe to read without the pipeline
// mutex, returned by Status().
type Snapshot = Job
