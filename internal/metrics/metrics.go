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

// Package metrics exposes pipeline counters and gauges for Prometheus
// scraping, mirrored on the status API's in-process snapshot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry groups every metric the pipeline publishes.
type Registry struct {
	FilesDownloaded  prometheus.Counter
	FilesPlateSolved prometheus.Counter
	FilesDiffed      prometheus.Counter
	CandidatesFound  prometheus.Counter
	StageErrors      *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
	ActiveWorkers    prometheus.Gauge
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		FilesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katsdiff_files_downloaded_total",
			Help: "Observation files successfully downloaded.",
		}),
		FilesPlateSolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katsdiff_files_plate_solved_total",
			Help: "Observation files successfully plate-solved.",
		}),
		FilesDiffed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katsdiff_files_diffed_total",
			Help: "Observation files successfully differenced against a template.",
		}),
		CandidatesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katsdiff_candidates_found_total",
			Help: "Transient candidates surfaced across all runs.",
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "katsdiff_stage_errors_total",
			Help: "Errors encountered per pipeline stage.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "katsdiff_stage_duration_seconds",
			Help: "Wall-clock duration per pipeline stage.",
		}, []string{"stage"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "katsdiff_queue_depth",
			Help: "Number of jobs queued per pipeline stage.",
		}, []string{"stage"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "katsdiff_active_workers",
			Help: "Workers currently processing a job.",
		}),
	}
	reg.MustRegister(m.FilesDownloaded, m.FilesPlateSolved, m.FilesDiffed, m.CandidatesFound,
		m.StageErrors, m.StageDuration, m.QueueDepth, m.ActiveWorkers)
	return m
}
