// Package jobs runs extraction pipelines on a bounded worker pool and keeps
// their transient state for polling clients.
package jobs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amrheing/mytools-gps-suite/internal/domain"
	"github.com/amrheing/mytools-gps-suite/internal/gpx"
	"github.com/amrheing/mytools-gps-suite/internal/registry"
	"github.com/amrheing/mytools-gps-suite/internal/storage"
)

var (
	// ErrNotFound is returned when polling an unknown job identifier.
	ErrNotFound = errors.New("job not found")
	// ErrNotCompleted is returned when consuming a job that has no result yet.
	ErrNotCompleted = errors.New("job not completed")
)

type task struct {
	jobID            string
	filePath         string
	originalFilename string
	uniqueID         string
}

// Runner executes one extraction pipeline per submitted upload. Jobs are
// independent; the only shared state is the guarded job table and the
// registry. There is no cancellation and no per-job timeout, so a hung parse
// occupies a pool slot until it returns.
type Runner struct {
	logger    *zap.Logger
	files     *storage.FileManager
	registry  *registry.Registry
	retention time.Duration

	tasks chan task
	quit  chan struct{}

	mu     sync.Mutex
	jobs   map[string]*domain.Job
	active map[string]string
}

func NewRunner(logger *zap.Logger, files *storage.FileManager, reg *registry.Registry, workers int, retention time.Duration) *Runner {
	if workers < 1 {
		workers = 1
	}

	r := &Runner{
		logger:    logger,
		files:     files,
		registry:  reg,
		retention: retention,
		tasks:     make(chan task, 64),
		quit:      make(chan struct{}),
		jobs:      make(map[string]*domain.Job),
		active:    make(map[string]string),
	}

	for i := 0; i < workers; i++ {
		go r.worker()
	}
	go r.janitor()

	return r
}

// Submit queues an extraction run and returns its job identifier. Jobs
// beyond pool capacity wait in FIFO order. A second submission for an
// identifier whose run is still in flight returns the existing job instead
// of starting a concurrent one.
func (r *Runner) Submit(filePath, originalFilename, uniqueID string) string {
	jobID := uuid.NewString()

	r.mu.Lock()
	if uniqueID != "" {
		if existing, ok := r.active[uniqueID]; ok {
			if _, alive := r.jobs[existing]; alive {
				r.mu.Unlock()
				return existing
			}
		}
		r.active[uniqueID] = jobID
	}
	r.jobs[jobID] = &domain.Job{
		ID:        jobID,
		State:     domain.JobStatePending,
		Message:   "Waiting for a worker...",
		StartTime: time.Now(),
	}
	r.mu.Unlock()

	r.logger.Info("job submitted",
		zap.String("jobId", jobID),
		zap.String("file", originalFilename))

	r.tasks <- task{jobID: jobID, filePath: filePath, originalFilename: originalFilename, uniqueID: uniqueID}
	return jobID
}

// Status returns a copy of the job's current state.
func (r *Runner) Status(jobID string) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	return *job, nil
}

// ConsumeResult returns a completed job's payload and removes the job from
// the table; a result can be consumed once.
func (r *Runner) ConsumeResult(jobID string) (*domain.JobResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if job.State != domain.JobStateCompleted || job.Result == nil {
		return nil, ErrNotCompleted
	}

	delete(r.jobs, jobID)
	return job.Result, nil
}

// Stop shuts down the workers and the janitor. Queued tasks are dropped.
func (r *Runner) Stop() {
	close(r.quit)
}

func (r *Runner) worker() {
	for {
		select {
		case <-r.quit:
			return
		case t := <-r.tasks:
			r.process(t)
		}
	}
}

func (r *Runner) janitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			r.pruneExpired()
		}
	}
}

func (r *Runner) pruneExpired() {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		if job.StartTime.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
	for uniqueID, jobID := range r.active {
		if _, alive := r.jobs[jobID]; !alive {
			delete(r.active, uniqueID)
		}
	}
}

func (r *Runner) process(t task) {
	r.update(t.jobID, 10, "Loading GPX file...", domain.JobStateProcessing)

	file, err := os.Open(t.filePath)
	if err != nil {
		r.fail(t, fmt.Errorf("open upload: %w", err))
		return
	}
	doc, err := gpx.Load(file)
	file.Close()
	if err != nil {
		r.fail(t, err)
		return
	}

	r.update(t.jobID, 20, "Analyzing GPX structure...", "")
	meta := gpx.Analyze(doc)

	if meta.WaypointCount == 0 && meta.TrackCount == 0 && meta.RouteCount == 0 {
		r.fail(t, gpx.ErrNoContent)
		return
	}

	r.update(t.jobID, 40, "Preparing output directory...", "")
	outputDir, err := r.files.CreateOutputDir(meta.SuggestedName)
	if err != nil {
		r.fail(t, err)
		return
	}
	outputPath := filepath.Join(r.files.ProcessedDir(), outputDir)

	extractor := gpx.NewExtractor(doc, t.originalFilename, outputPath)

	r.update(t.jobID, 50, "Extracting waypoints...", "")
	waypointFile, waypointCount, err := extractor.ExtractWaypoints(meta.SuggestedName)
	if err != nil {
		r.fail(t, err)
		return
	}

	r.update(t.jobID, 70, "Extracting tracks...", "")
	trackFiles, err := extractor.ExtractTracks(meta.SuggestedName)
	if err != nil {
		r.fail(t, err)
		return
	}

	r.update(t.jobID, 85, "Extracting routes...", "")
	routeFiles, err := extractor.ExtractRoutes(meta.SuggestedName)
	if err != nil {
		r.fail(t, err)
		return
	}

	r.update(t.jobID, 95, "Creating summary...", "")
	if _, err := extractor.WriteSummary(meta, waypointFile, waypointCount, trackFiles, routeFiles); err != nil {
		r.fail(t, err)
		return
	}

	result := &domain.JobResult{
		OriginalFilename: t.originalFilename,
		OutputDirectory:  outputDir,
		Summary:          r.files.ReadSummary(outputDir),
		Metadata:         meta,
	}
	if files, listErr := r.files.ListOutputs(outputDir); listErr == nil {
		for i := range files {
			if files[i].Type == "waypoints" {
				files[i].Count = waypointCount
			}
		}
		result.ExtractedFiles = files
	} else {
		r.logger.Warn("list outputs",
			zap.String("outputDirectory", outputDir),
			zap.Error(listErr))
	}

	if t.uniqueID != "" {
		if err := r.registry.SetOutputDirectory(t.uniqueID, outputDir); err != nil {
			r.logger.Warn("persist output directory",
				zap.String("uniqueId", t.uniqueID),
				zap.Error(err))
		}
	}

	r.complete(t, result)
}

func (r *Runner) update(jobID string, progress int, message, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return
	}
	job.Progress = progress
	job.Message = message
	if state != "" {
		job.State = state
	}
}

func (r *Runner) complete(t task, result *domain.JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.release(t)
	job, ok := r.jobs[t.jobID]
	if !ok {
		return
	}
	job.State = domain.JobStateCompleted
	job.Progress = 100
	job.Message = "Processing complete!"
	job.Result = result

	r.logger.Info("job completed",
		zap.String("jobId", t.jobID),
		zap.String("outputDirectory", result.OutputDirectory))
}

func (r *Runner) fail(t task, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.release(t)
	job, ok := r.jobs[t.jobID]
	if !ok {
		return
	}
	job.State = domain.JobStateFailed
	job.Progress = 0
	job.Error = err.Error()

	var parseErr *gpx.ParseError
	switch {
	case errors.As(err, &parseErr):
		job.Message = "Error processing GPX file. Please check the file format."
	case errors.Is(err, gpx.ErrNoContent):
		job.Message = "No extractable content found in GPX file."
	default:
		job.Message = "Error processing file."
	}

	r.logger.Warn("job failed", zap.String("jobId", t.jobID), zap.Error(err))
}

// release drops the in-flight marker for a finished task. Caller holds mu.
func (r *Runner) release(t task) {
	if t.uniqueID == "" {
		return
	}
	if r.active[t.uniqueID] == t.jobID {
		delete(r.active, t.uniqueID)
	}
}
