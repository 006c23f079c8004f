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

// Package pipeline wires Download, PlateSolve, Differ and Detect into a
// four-stage producer/consumer engine coordinated by bounded channels,
// generalizing the teacher's single-round OpParallel semaphore pool into a
// persistent staged topology.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/278261631/local-kats-sub000/internal/align"
	"github.com/278261631/local-kats-sub000/internal/blobs"
	"github.com/278261631/local-kats-sub000/internal/config"
	"github.com/278261631/local-kats-sub000/internal/cutouts"
	"github.com/278261631/local-kats-sub000/internal/denoise"
	"github.com/278261631/local-kats-sub000/internal/differ"
	"github.com/278261631/local-kats-sub000/internal/fitsimage"
	"github.com/278261631/local-kats-sub000/internal/linesuppress"
	"github.com/278261631/local-kats-sub000/internal/logging"
	"github.com/278261631/local-kats-sub000/internal/median"
	"github.com/278261631/local-kats-sub000/internal/metrics"
	"github.com/278261631/local-kats-sub000/internal/observation"
	"github.com/278261631/local-kats-sub000/internal/ossupload"
	"github.com/278261631/local-kats-sub000/internal/paths"
	"github.com/278261631/local-kats-sub000/internal/platesolver"
	"github.com/278261631/local-kats-sub000/internal/stretch"
	"github.com/278261631/local-kats-sub000/internal/template"
)

// Probe classifies a job's output directory without relying on in-memory
// state, per the "implicit file-existence-as-done" design note.
type Probe string

const (
	ProbeAbsent   Probe = "absent"
	ProbePartial  Probe = "partial"
	ProbeComplete Probe = "complete"
)

// JobOutputProbe reports whether diffDir already holds a completed
// detection_* subdirectory (complete), an incomplete one (partial), or none
// (absent).
func JobOutputProbe(jobOutputDir string) Probe {
	entries, err := os.ReadDir(jobOutputDir)
	if err != nil {
		return ProbeAbsent
	}
	found := false
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) >= 10 && e.Name()[:10] == "detection_" {
			found = true
			if _, err := os.Stat(filepath.Join(jobOutputDir, e.Name(), "cutouts")); err == nil {
				return ProbeComplete
			}
		}
	}
	if found {
		return ProbePartial
	}
	return ProbeAbsent
}

// Entry is one observation to enqueue: either a scanner-discovered remote
// file (URL non-empty) or a disk-resident file fed by the batch driver.
type Entry struct {
	FileName string
	URL      string
}

// Dependencies are the pipeline's external collaborators; nil fields fall
// back to sensible no-ops. Discovery (internal/scanner) happens upstream of
// Submit, in the CLI driver, so it is not itself a pipeline dependency.
type Dependencies struct {
	Solver   platesolver.Solver
	Uploader ossupload.Uploader
	Metrics  *metrics.Registry
	ErrorLog *logging.ErrorLog
	Log      logging.LogSink
}

// Pipeline runs the four-stage engine over a bounded set of jobs.
type Pipeline struct {
	cfg  config.Config
	deps Dependencies

	downloadCh chan *Job
	solveCh    chan *Job
	differCh   chan *Job
	detectCh   chan *Job

	statusMu sync.RWMutex
	jobs     []*Job

	detectInputs detectInputTable

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	// sem bounds concurrent CPU-heavy work (align/differ/detect) across all
	// stage workers independently of the per-stage goroutine count, so
	// MaxWorkers can be tuned separately from ThreadCount.
	sem *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds a pipeline for cfg and deps. Nil deps fields are replaced by
// no-op implementations.
func New(cfg config.Config, deps Dependencies) *Pipeline {
	if deps.Solver == nil {
		deps.Solver = platesolver.NoOpSolver{}
	}
	if deps.Uploader == nil {
		deps.Uploader = ossupload.NoOpUploader{}
	}
	if deps.Log == nil {
		deps.Log = logging.NewConsoleSink()
	}
	if cfg.NoASTAP {
		deps.Solver = platesolver.NoOpSolver{}
	}

	capacity := 2 * cfg.MaxWorkers
	if capacity < 2 {
		capacity = 2
	}
	maxWorkers := int64(cfg.MaxWorkers)
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:        cfg,
		deps:       deps,
		downloadCh: make(chan *Job, capacity),
		solveCh:    make(chan *Job, capacity),
		differCh:   make(chan *Job, capacity),
		detectCh:   make(chan *Job, capacity),
		sem:        semaphore.NewWeighted(maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.pauseCond = sync.NewCond(&p.pauseMu)
	return p
}

// Submit starts the stage workers and enqueues entries. A Pipeline accepts
// one Submit call: Submit closes the download queue once every entry is
// enqueued, so a second call panics on the closed queue.
func (p *Pipeline) Submit(entries []Entry) error {
	group, ctx := errgroup.WithContext(p.ctx)
	p.group = group
	p.ctx = ctx

	var upstream, differs sync.WaitGroup
	upstream.Add(1 + p.cfg.ThreadCount)
	differs.Add(p.cfg.ThreadCount)
	group.Go(func() error { defer upstream.Done(); return p.runDownload(ctx) })
	for i := 0; i < p.cfg.ThreadCount; i++ {
		group.Go(func() error { defer upstream.Done(); return p.runPlateSolve(ctx) })
	}
	for i := 0; i < p.cfg.ThreadCount; i++ {
		group.Go(func() error { defer differs.Done(); return p.runDiffer(ctx) })
	}
	for i := 0; i < p.cfg.ThreadCount; i++ {
		group.Go(func() error { return p.runDetect(ctx) })
	}
	group.Go(func() error {
		upstream.Wait()
		close(p.differCh)
		differs.Wait()
		close(p.detectCh)
		return nil
	})

	for _, e := range entries {
		desc, err := observation.Parse(e.FileName)
		if err != nil {
			p.recordFailed(&Job{Descriptor: observation.Descriptor{FileName: e.FileName}}, KindInputMissing, err.Error())
			continue
		}
		job := &Job{
			ID:         uuid.NewString(),
			Descriptor: desc,
			SourceURL:  e.URL,
			Stage:      StageDownload,
			Status:     StatusQueued,
			StartedAt:  timeNow(),
		}
		p.addJob(job)
		select {
		case p.downloadCh <- job:
		case <-ctx.Done():
		}
	}
	close(p.downloadCh)
	return nil
}

// Wait blocks until every stage worker has exited (all queues drained and
// closed in sequence, or the pipeline was stopped).
func (p *Pipeline) Wait() error {
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// Pause blips the shared flag; workers finish their current job's current
// stage, then block until Resume.
func (p *Pipeline) Pause() {
	p.pauseMu.Lock()
	p.paused = true
	p.pauseMu.Unlock()
}

// Resume releases paused workers.
func (p *Pipeline) Resume() {
	p.pauseMu.Lock()
	p.paused = false
	p.pauseMu.Unlock()
	p.pauseCond.Broadcast()
}

// Stop cancels the pipeline-global context; workers exit after their
// current job's current stage completes.
func (p *Pipeline) Stop() {
	p.cancel()
	p.Resume() // unblock anyone waiting on pause so they can observe cancellation
}

// Status returns a read-only snapshot of every job submitted so far.
func (p *Pipeline) Status() []Snapshot {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	out := make([]Snapshot, len(p.jobs))
	for i, j := range p.jobs {
		out[i] = *j
	}
	return out
}

func (p *Pipeline) addJob(j *Job) {
	p.statusMu.Lock()
	p.jobs = append(p.jobs, j)
	p.statusMu.Unlock()
}

func (p *Pipeline) checkPause() {
	p.pauseMu.Lock()
	for p.paused && p.ctx.Err() == nil {
		p.pauseCond.Wait()
	}
	p.pauseMu.Unlock()
}

func (p *Pipeline) setStatus(j *Job, stage Stage, status Status, reason string) {
	p.statusMu.Lock()
	j.Stage, j.Status, j.Reason = stage, status, reason
	if status == StatusDone || status == StatusSkipped || status == StatusFailed {
		j.FinishedAt = timeNow()
	}
	p.statusMu.Unlock()
}

func (p *Pipeline) recordFailed(j *Job, kind Kind, detail string) {
	err := newError(kind, j.Descriptor.FileName, detail, nil)
	p.addJob(j)
	p.setStatus(j, j.Stage, StatusFailed, err.Error())
	if p.deps.ErrorLog != nil {
		p.deps.ErrorLog.Append(err.File(), string(err.Kind()), detail)
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.StageErrors.WithLabelValues(string(j.Stage)).Inc()
	}
}

func (p *Pipeline) fail(j *Job, kind Kind, detail string) {
	err := newError(kind, j.Descriptor.FileName, detail, nil)
	p.setStatus(j, j.Stage, StatusFailed, err.Error())
	if p.deps.ErrorLog != nil {
		p.deps.ErrorLog.Append(err.File(), string(err.Kind()), detail)
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.StageErrors.WithLabelValues(string(j.Stage)).Inc()
	}
	logging.Warnf(p.deps.Log, "%s", err.Error())
}

// timeNow returns the current UTC time; the pipeline uses it to stamp job
// start and finish times and detection directory names.
func timeNow() time.Time { return time.Now().UTC() }

// --- Download stage -------------------------------------------------------

func (p *Pipeline) runDownload(ctx context.Context) error {
	for job := range p.downloadCh {
		if ctx.Err() != nil {
			continue
		}
		p.checkPause()
		p.processDownload(ctx, job)
	}
	close(p.solveCh)
	return nil
}

func (p *Pipeline) processDownload(ctx context.Context, job *Job) {
	p.setStatus(job, StageDownload, StatusDownloading, "")

	localPath := paths.Download(p.cfg.DownloadDir, job.Descriptor.Telescope, p.cfg.Date, job.Descriptor.Region, job.Descriptor.FileName)
	job.LocalPath = localPath

	if info, err := os.Stat(localPath); err == nil && info.Size() > 0 {
		// already present
	} else if job.SourceURL != "" {
		if err := p.downloadWithRetry(ctx, job.SourceURL, localPath); err != nil {
			p.fail(job, KindNetworkFatal, err.Error())
			return
		}
	} else {
		p.fail(job, KindInputMissing, fmt.Sprintf("file not found: %s", localPath))
		return
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.FilesDownloaded.Inc()
	}

	img, err := fitsimage.LoadHeaderOnly(localPath)
	if err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}
	p.setStatus(job, StageDownload, StatusDownloaded, "")

	if img.Header.HasWCS() || p.cfg.NoASTAP {
		p.enqueue(ctx, p.differCh, job)
	} else {
		p.enqueue(ctx, p.solveCh, job)
	}
}

func (p *Pipeline) downloadWithRetry(ctx context.Context, url, localPath string) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.RetryTimes; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := fetchToFile(ctx, url, localPath); err != nil {
			lastErr = err
			logging.Debugf(p.deps.Log, "%s", newError(KindNetworkTransient, url, fmt.Sprintf("attempt %d/%d", attempt+1, p.cfg.RetryTimes+1), err).Error())
			continue
		}
		return nil
	}
	return newError(KindNetworkFatal, url, fmt.Sprintf("all %d attempts failed", p.cfg.RetryTimes+1), lastErr)
}

func fetchToFile(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0777); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

// --- PlateSolve stage ------------------------------------------------------

func (p *Pipeline) runPlateSolve(ctx context.Context) error {
	for job := range p.solveCh {
		if ctx.Err() != nil {
			continue
		}
		p.checkPause()
		p.processPlateSolve(ctx, job)
	}
	return nil
}

func (p *Pipeline) processPlateSolve(ctx context.Context, job *Job) {
	p.setStatus(job, StagePlateSolve, StatusSolving, "")
	if !p.deps.Solver.IsAvailable() {
		p.fail(job, KindExternalToolFailure, "no plate solver available (--no-astap or binary missing)")
		return
	}
	if err := p.deps.Solver.Solve(ctx, job.LocalPath, p.cfg.Timeout()); err != nil {
		p.fail(job, KindExternalToolFailure, err.Error())
		return
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.FilesPlateSolved.Inc()
	}
	p.setStatus(job, StagePlateSolve, StatusSolved, "")
	p.enqueue(ctx, p.differCh, job)
}

// --- Differ stage ------------------------------------------------------

func (p *Pipeline) runDiffer(ctx context.Context) error {
	for job := range p.differCh {
		if ctx.Err() != nil {
			continue
		}
		p.checkPause()
		p.processDiffer(ctx, job)
	}
	return nil
}

func (p *Pipeline) processDiffer(ctx context.Context, job *Job) {
	p.setStatus(job, StageDiffer, StatusDiffering, "")

	detectionDir := paths.DetectionDir(p.cfg.DiffOutputDir, job.Descriptor.Telescope, p.cfg.Date,
		job.Descriptor.Region, job.Descriptor.FileName, timeNow())
	jobDir := filepath.Dir(detectionDir)
	if JobOutputProbe(jobDir) == ProbeComplete {
		p.setStatus(job, StageDetect, StatusSkipped, "already-processed")
		return
	}

	templatePath, found, err := template.Find(job.Descriptor.FileName, p.cfg.TemplateDir)
	if err != nil || !found {
		p.setStatus(job, StageDiffer, StatusSkipped, "no_template")
		if p.deps.ErrorLog != nil {
			p.deps.ErrorLog.Append(job.Descriptor.FileName, string(KindInputMissing), "no matching template")
		}
		return
	}
	job.TemplatePath = templatePath

	obs, err := fitsimage.Load(job.LocalPath)
	if err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}
	ref, err := fitsimage.Load(templatePath)
	if err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}

	// Bound concurrent CPU-heavy alignment/differencing work to MaxWorkers,
	// independent of how many differ-stage goroutines (ThreadCount) are live.
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}
	defer p.sem.Release(1)

	mask := median.CreateMask(obs.Naxisn[0], 1.5)
	cleaned := make([]float32, len(obs.Data))
	denoise.Filter(cleaned, obs.Data, mask)
	denoise.Clean(cleaned, obs.Naxisn[0], 4, 4, 1.5)
	obs.Data = cleaned

	method := "wcs"
	if p.cfg.NoASTAP {
		method = "rigid"
	}
	result, err := align.Align(ref, obs, method)
	if err != nil {
		p.fail(job, KindAlignmentFailed, err.Error())
		return
	}

	diff, err := differ.BuildDifference(ref, result.Aligned, 1.0)
	if err != nil {
		p.fail(job, KindDataQuality, err.Error())
		return
	}

	if err := os.MkdirAll(detectionDir, 0777); err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}
	if err := fitsimage.Save(diff.Data, filepath.Join(detectionDir, "difference.fits"), "katsdiff differ"); err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}

	stretchParams := stretch.DefaultPercentileParams()
	if p.cfg.StretchMode == "peak" {
		stretchParams = stretch.DefaultPeakParams()
	}
	stretched, _, _, err := stretch.StretchFloat32(diff.Data.Data, diff.Data.Naxisn[0], stretchParams)
	if err != nil {
		p.fail(job, KindDataQuality, err.Error())
		return
	}

	lp := linesuppress.DefaultParams()
	suppressed, _ := linesuppress.Suppress(stretched, diff.Data.Naxisn[0], lp)

	job.TemplatePath = templatePath
	job.Candidates = -1 // filled in by Detect
	if p.deps.Metrics != nil {
		p.deps.Metrics.FilesDiffed.Inc()
	}
	p.setStatus(job, StageDiffer, StatusDiffered, "")

	detectJob := &detectInput{
		job:          job,
		detectionDir: detectionDir,
		reference:   ref.Data,
		aligned:     result.Aligned.Data,
		stretched:   suppressed,
		width:       diff.Data.Naxisn[0],
		overlapMask: diff.OverlapMask,
	}
	p.detectInputs.store(job, detectJob)
	p.enqueue(ctx, p.detectCh, job)
}

// --- Detect stage ------------------------------------------------------

func (p *Pipeline) runDetect(ctx context.Context) error {
	for job := range p.detectCh {
		if ctx.Err() != nil {
			continue
		}
		p.checkPause()
		p.processDetect(ctx, job)
	}
	return nil
}

func (p *Pipeline) processDetect(ctx context.Context, job *Job) {
	p.setStatus(job, StageDetect, StatusDetecting, "")
	in, ok := p.detectInputs.load(job)
	if !ok {
		p.fail(job, KindIOError, "missing difference-stage output")
		return
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}
	defer p.sem.Release(1)

	candidates, err := blobs.Detect(in.stretched, in.aligned, in.width, 0.0, blobs.DefaultParams())
	if err != nil {
		p.fail(job, KindDataQuality, err.Error())
		return
	}
	blobs.Sort(candidates, "quality_score")

	cDir := paths.Cutouts(in.detectionDir)
	if err := os.MkdirAll(cDir, 0777); err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}

	for i, c := range candidates {
		set, err := cutouts.Build(in.reference, in.aligned, in.stretched, in.width, c, 100)
		if err != nil {
			continue
		}
		base := fmt.Sprintf("candidate_%03d", i)
		cutouts.WritePNGToFile(filepath.Join(cDir, base+"_reference.png"), set.Reference)
		cutouts.WritePNGToFile(filepath.Join(cDir, base+"_aligned.png"), set.Aligned)
		cutouts.WritePNGToFile(filepath.Join(cDir, base+"_detection.png"), set.Detection)
	}

	catalogPath := filepath.Join(in.detectionDir, job.Descriptor.FileName+"_sources.txt")
	if err := writeCatalog(catalogPath, job.ID, candidates); err != nil {
		p.fail(job, KindIOError, err.Error())
		return
	}
	if err := p.deps.Uploader.Upload(ctx, catalogPath, job.Descriptor.FileName+"/sources.txt"); err != nil {
		logging.Warnf(p.deps.Log, "%s: oss upload failed: %s", job.Descriptor.FileName, err.Error())
	}

	job.Candidates = len(candidates)
	if p.deps.Metrics != nil {
		p.deps.Metrics.CandidatesFound.Add(float64(len(candidates)))
	}
	p.setStatus(job, StageDetect, StatusDone, "")
	p.detectInputs.delete(job)
}

func (p *Pipeline) enqueue(ctx context.Context, ch chan *Job, job *Job) {
	select {
	case ch <- job:
	case <-ctx.Done():
	}
}

// detectInput carries the pixel buffers a Differ-stage run hands to the
// Detect stage; kept out of Job itself so Status() snapshots stay small.
type detectInput struct {
	job          *Job
	detectionDir string
	reference    []float32
	aligned      []float32
	stretched    []float32
	width        int32
	overlapMask  []uint8
}

type detectInputTable struct {
	mu sync.Mutex
	m  map[*Job]*detectInput
}

func (t *detectInputTable) store(j *Job, in *detectInput) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.m == nil {
		t.m = make(map[*Job]*detectInput)
	}
	t.m[j] = in
}
func (t *detectInputTable) load(j *Job) (*detectInput, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in, ok := t.m[j]
	return in, ok
}
func (t *detectInputTable) delete(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, j)
}
