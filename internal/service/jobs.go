// Package service provides the document pipeline, job tracking, and search
// orchestration.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ForkIt369/ragpipe/internal/models"
	"github.com/ForkIt369/ragpipe/internal/store"
)

// stageFloor maps each processing stage to the progress percentage at
// which it begins. Embedding dominates the range because it dominates
// wall-clock time.
var stageFloor = map[models.JobStage]int{
	models.StagePending:    0,
	models.StageExtracting: 0,
	models.StageChunking:   10,
	models.StageEmbedding:  30,
	models.StageIndexing:   90,
	models.StageCompleted:  100,
}

// stageCeil is the progress percentage at which a stage ends.
var stageCeil = map[models.JobStage]int{
	models.StageExtracting: 10,
	models.StageChunking:   30,
	models.StageEmbedding:  90,
	models.StageIndexing:   100,
}

// eventBuffer bounds the stage event channel. Emission never blocks; when
// no observer keeps up, events are dropped.
const eventBuffer = 256

// JobManager tracks processing jobs. It is the only writer of job records;
// all mutation goes through its methods.
type JobManager struct {
	mu      sync.RWMutex
	jobs    map[string]*models.ProcessingJob
	byDoc   map[string]string // documentID -> latest job ID
	cancels map[string]context.CancelFunc

	store  *store.Store
	events chan models.StageEvent
}

// NewJobManager creates a job manager. st may be nil for in-memory use.
func NewJobManager(st *store.Store) *JobManager {
	return &JobManager{
		jobs:    make(map[string]*models.ProcessingJob),
		byDoc:   make(map[string]string),
		cancels: make(map[string]context.CancelFunc),
		store:   st,
		events:  make(chan models.StageEvent, eventBuffer),
	}
}

// Restore loads persisted jobs into memory, marking any job left
// non-terminal by a previous process as failed. Runs interrupted by a
// crash cannot be resumed; a retry creates a new job.
func (m *JobManager) Restore() error {
	if m.store == nil {
		return nil
	}

	return m.store.List(store.CollectionJobs, func(raw []byte) error {
		var job models.ProcessingJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("decode job: %w", err)
		}
		if !job.Stage.Terminal() {
			now := time.Now()
			job.Stage = models.StageError
			job.Error = "interrupted by shutdown"
			job.CompletedAt = &now
			m.persist(&job)
		}

		m.mu.Lock()
		m.jobs[job.ID] = &job
		if current, ok := m.byDoc[job.DocumentID]; !ok || m.jobs[current].StartedAt.Before(job.StartedAt) {
			m.byDoc[job.DocumentID] = job.ID
		}
		m.mu.Unlock()
		return nil
	})
}

// Create starts tracking a new job for a document. Any previous job for
// the document stays in history; retries always get a fresh record.
func (m *JobManager) Create(documentID string) models.ProcessingJob {
	job := &models.ProcessingJob{
		ID:         uuid.New().String()[:8], // Short ID for convenience
		DocumentID: documentID,
		Stage:      models.StagePending,
		StartedAt:  time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.byDoc[documentID] = job.ID
	m.mu.Unlock()

	m.persist(job)
	m.emit(job)

	slog.Info("job created", "job_id", job.ID, "document_id", documentID)
	return *job
}

// RegisterCancel associates a cancel func with the job so the document's
// pipeline run can be aborted via Cancel.
func (m *JobManager) RegisterCancel(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancels[jobID] = cancel
	m.mu.Unlock()
}

// Cancel aborts the active job for a document. Returns false when the
// document has no cancellable job.
func (m *JobManager) Cancel(documentID string) bool {
	m.mu.Lock()
	jobID, ok := m.byDoc[documentID]
	var cancel context.CancelFunc
	if ok {
		cancel, ok = m.cancels[jobID]
	}
	m.mu.Unlock()

	if !ok || cancel == nil {
		return false
	}
	cancel()
	return true
}

// SetStage transitions the job to a new stage. Progress jumps to the
// stage's floor. Terminal jobs are immutable; transitions on them fail.
func (m *JobManager) SetStage(jobID string, stage models.JobStage) error {
	now := time.Now()

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Stage.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("job %s is %s; terminal jobs are immutable", jobID, job.Stage)
	}

	job.Stage = stage
	if floor := stageFloor[stage]; floor > job.Progress {
		job.Progress = floor
	}
	if stage == models.StageCompleted {
		job.Progress = 100
		job.CompletedAt = &now
	}
	snapshot := *job
	m.mu.Unlock()

	m.persist(&snapshot)
	m.emit(&snapshot)
	return nil
}

// UpdateProgress reports within-stage progress as done out of total units.
// Progress never decreases and never crosses into the next stage's range.
func (m *JobManager) UpdateProgress(jobID string, stage models.JobStage, done, total int) {
	if total <= 0 {
		return
	}

	floor, ceil := stageFloor[stage], stageCeil[stage]
	p := floor + (ceil-floor)*done/total
	if p > ceil {
		p = ceil
	}

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Stage.Terminal() {
		m.mu.Unlock()
		return
	}
	if p <= job.Progress {
		m.mu.Unlock()
		return
	}
	job.Progress = p
	snapshot := *job
	m.mu.Unlock()

	m.persist(&snapshot)
	m.emit(&snapshot)
}

// Complete marks the job completed.
func (m *JobManager) Complete(jobID string) error {
	if err := m.SetStage(jobID, models.StageCompleted); err != nil {
		return err
	}
	m.clearCancel(jobID)
	slog.Info("job completed", "job_id", jobID)
	return nil
}

// Fail marks the job failed with the given error. The failing stage's
// progress is preserved.
func (m *JobManager) Fail(jobID string, cause error) error {
	now := time.Now()

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Stage.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("job %s is %s; terminal jobs are immutable", jobID, job.Stage)
	}

	job.Stage = models.StageError
	job.Error = cause.Error()
	job.CompletedAt = &now
	snapshot := *job
	m.mu.Unlock()

	m.persist(&snapshot)
	m.emit(&snapshot)
	m.clearCancel(jobID)

	slog.Error("job failed", "job_id", jobID, "error", cause)
	return nil
}

// Get returns the latest job for a document.
func (m *JobManager) Get(documentID string) (models.ProcessingJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobID, ok := m.byDoc[documentID]
	if !ok {
		return models.ProcessingJob{}, false
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return models.ProcessingJob{}, false
	}
	return *job, true
}

// GetJob returns a job by its own ID.
func (m *JobManager) GetJob(jobID string) (models.ProcessingJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return models.ProcessingJob{}, false
	}
	return *job, true
}

// List returns all tracked jobs, most recent first.
func (m *JobManager) List() []models.ProcessingJob {
	m.mu.RLock()
	jobs := make([]models.ProcessingJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b models.ProcessingJob) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// Events exposes stage transitions to observers. The channel is never
// closed; slow observers lose events rather than stalling the pipeline.
func (m *JobManager) Events() <-chan models.StageEvent {
	return m.events
}

func (m *JobManager) emit(job *models.ProcessingJob) {
	ev := models.StageEvent{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Stage:      job.Stage,
		Progress:   job.Progress,
		At:         time.Now(),
	}
	select {
	case m.events <- ev:
	default:
	}
}

func (m *JobManager) persist(job *models.ProcessingJob) {
	if m.store == nil {
		return
	}
	err := m.store.Put(store.CollectionJobs, job.ID, job,
		store.Index{Field: "document_id", Value: job.DocumentID})
	if err != nil {
		slog.Warn("failed to persist job", "job_id", job.ID, "error", err)
	}
}

func (m *JobManager) clearCancel(jobID string) {
	m.mu.Lock()
	delete(m.cancels, jobID)
	m.mu.Unlock()
}
