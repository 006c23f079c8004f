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

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/278261631/local-kats-sub000/internal/config"
	"github.com/278261631/local-kats-sub000/internal/httpapi"
	"github.com/278261631/local-kats-sub000/internal/logging"
	"github.com/278261631/local-kats-sub000/internal/metrics"
	"github.com/278261631/local-kats-sub000/internal/observation"
	"github.com/278261631/local-kats-sub000/internal/pipeline"
	"github.com/278261631/local-kats-sub000/internal/platesolver"
	"github.com/278261631/local-kats-sub000/internal/scanner"
)

var (
	flagDate          string
	flagTelescope     string
	flagRegion        string
	flagDownloadDir   string
	flagTemplateDir   string
	flagDiffOutputDir string
	flagThreadCount   int
	flagMaxWorkers    int
	flagRetryTimes    int
	flagTimeoutSec    int
	flagNoASTAP       bool
	flagStretchMode   string
	flagScanURL       string
	flagFiles         []string
	flagServeAddr     string
)

func main() {
	root := &cobra.Command{
		Use:   "katsdiff",
		Short: "Transient-detection pipeline for FITS sky-survey imagery",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the download/plate-solve/differ/detect pipeline",
		RunE:  runPipeline,
	}
	run.Flags().StringVar(&flagDate, "date", "", "observation date, YYYYMMDD (required)")
	run.Flags().StringVar(&flagTelescope, "telescope", "", "telescope id; absent = all telescopes")
	run.Flags().StringVar(&flagRegion, "region", "", "region id; absent = all regions")
	run.Flags().StringVar(&flagDownloadDir, "download-dir", "", "root directory for downloaded observations")
	run.Flags().StringVar(&flagTemplateDir, "template-dir", "", "directory of per-region templates")
	run.Flags().StringVar(&flagDiffOutputDir, "diff-output-dir", "", "root directory for difference/detection outputs")
	run.Flags().IntVar(&flagThreadCount, "thread-count", 4, "workers per pipeline stage")
	run.Flags().IntVar(&flagMaxWorkers, "max-workers", 4, "maximum concurrent align/differ/detect jobs; stage queues hold twice this many")
	run.Flags().IntVar(&flagRetryTimes, "retry-times", 3, "download retry attempts")
	run.Flags().IntVar(&flagTimeoutSec, "timeout", 120, "per-operation timeout, seconds")
	run.Flags().BoolVar(&flagNoASTAP, "no-astap", false, "disable the plate solver, forcing rigid-first alignment")
	run.Flags().StringVar(&flagStretchMode, "stretch-mode", "percentile", "difference-image stretch mode before detection: percentile or peak")
	run.Flags().StringVar(&flagScanURL, "scan-url", "", "remote directory to scan for new observations")
	run.Flags().StringSliceVar(&flagFiles, "files", nil, "explicit file list, bypassing the remote scanner")
	run.Flags().StringVar(&flagServeAddr, "serve-addr", "", "if set, also serve the status API on this address (e.g. :8080)")
	root.AddCommand(run)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	date, err := time.Parse("20060102", flagDate)
	if err != nil {
		return fmt.Errorf("katsdiff: --date: %w", err)
	}
	cfg.Date = date
	cfg.Telescope = flagTelescope
	cfg.Region = flagRegion
	cfg.DownloadDir = flagDownloadDir
	cfg.TemplateDir = flagTemplateDir
	cfg.DiffOutputDir = flagDiffOutputDir
	cfg.ThreadCount = flagThreadCount
	cfg.MaxWorkers = flagMaxWorkers
	cfg.RetryTimes = flagRetryTimes
	cfg.TimeoutSec = flagTimeoutSec
	cfg.NoASTAP = flagNoASTAP
	cfg.StretchMode = flagStretchMode
	cfg.Files = flagFiles

	if err := cfg.Validate(); err != nil {
		return err
	}
	if clamped, reduced := cfg.ClampWorkersToMemory(); reduced {
		fmt.Fprintf(os.Stderr, "katsdiff: reducing --max-workers to %d to fit physical memory\n", clamped.MaxWorkers)
		cfg = clamped
	}

	if err := os.MkdirAll(cfg.DiffOutputDir, 0777); err != nil {
		return fmt.Errorf("katsdiff: diff-output-dir: %w", err)
	}
	errorLog, err := logging.NewErrorLog(filepath.Join(cfg.DiffOutputDir, "diff_error_log.txt"))
	if err != nil {
		return err
	}
	defer errorLog.Close()

	ring := logging.NewRingSink(1000)
	console := logging.NewConsoleSink()
	logSink := logging.MultiSink{console, ring}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	var solver platesolver.Solver = platesolver.NewASTAPSolver()
	if cfg.NoASTAP {
		solver = platesolver.NoOpSolver{}
	}

	p := pipeline.New(cfg, pipeline.Dependencies{
		Solver:   solver,
		Metrics:  reg,
		ErrorLog: errorLog,
		Log:      logSink,
	})

	if flagServeAddr != "" {
		server := httpapi.NewServer(statusAdapter{p}, ring)
		go server.Run(flagServeAddr)
	}

	entries, err := discoverEntries(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if err := p.Submit(entries); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	select {
	case <-ctx.Done():
		p.Stop()
		<-done
		return fmt.Errorf("katsdiff: interrupted")
	case err := <-done:
		return summarize(p, err)
	}
}

func discoverEntries(ctx context.Context, cfg config.Config) ([]pipeline.Entry, error) {
	if len(cfg.Files) > 0 {
		entries := make([]pipeline.Entry, 0, len(cfg.Files))
		for _, f := range cfg.Files {
			name := filepath.Base(f)
			if !matchesFilter(name, cfg.Telescope, cfg.Region) {
				continue
			}
			entries = append(entries, pipeline.Entry{FileName: name})
		}
		return entries, nil
	}
	if flagScanURL == "" {
		return nil, fmt.Errorf("katsdiff: neither --files nor --scan-url given")
	}
	s := scanner.NewHTTPDirectoryScanner()
	listed, err := s.List(ctx, flagScanURL)
	if err != nil {
		return nil, fmt.Errorf("katsdiff: scanning %s: %w", flagScanURL, err)
	}
	entries := make([]pipeline.Entry, 0, len(listed))
	for _, e := range listed {
		if !matchesFilter(e.Name, cfg.Telescope, cfg.Region) {
			continue
		}
		entries = append(entries, pipeline.Entry{FileName: e.Name, URL: e.URL})
	}
	return entries, nil
}

// matchesFilter reports whether fileName belongs to the requested telescope
// and region, per --telescope/--region ("" matches everything). With no
// filter set, a name that fails to parse still passes through here: Submit
// attempts the same parse and records a proper input_missing failure for it,
// which is more useful than silently vanishing from the discovered set.
// Once a filter is set, an unparsable name can't be known to satisfy it, so
// it is excluded rather than assumed to match.
func matchesFilter(fileName, telescope, region string) bool {
	if telescope == "" && region == "" {
		return true
	}
	d, err := observation.Parse(fileName)
	if err != nil {
		return false
	}
	if telescope != "" && d.Telescope != telescope {
		return false
	}
	if region != "" && d.Region != region {
		return false
	}
	return true
}

func summarize(p *pipeline.Pipeline, runErr error) error {
	if runErr != nil {
		return runErr
	}
	failed := 0
	for _, j := range p.Status() {
		if j.Status == "failed" {
			failed++
		}
	}
	fmt.Printf("katsdiff: %d jobs, %d failed\n", len(p.Status()), failed)
	return nil
}

type statusAdapter struct{ p *pipeline.Pipeline }

func (a statusAdapter) Status() httpapi.Status {
	jobs := a.p.Status()
	st := httpapi.Status{Stage: "mixed"}
	for _, j := range jobs {
		switch j.Status {
		case "done":
			st.FilesCompleted++
		case "failed":
			st.FilesFailed++
		default:
			st.FilesQueued++
		}
	}
	return st
}
