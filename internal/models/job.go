package models

import "time"

// JobStage is a stage in the document processing state machine.
type JobStage string

const (
	StagePending    JobStage = "pending"
	StageExtracting JobStage = "extracting"
	StageChunking   JobStage = "chunking"
	StageEmbedding  JobStage = "embedding"
	StageIndexing   JobStage = "indexing"
	StageCompleted  JobStage = "completed"
	StageError      JobStage = "error"
)

// Terminal reports whether the stage is final. Terminal jobs are never
// mutated again; a retry creates a new job record.
func (s JobStage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// ProcessingJob tracks one pipeline run for a document. A document has at
// most one active (non-terminal) job at a time.
type ProcessingJob struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Stage      JobStage `json:"stage"`

	// Progress is a stage-weighted percentage in [0,100], monotonically
	// non-decreasing over the job's lifetime.
	Progress int `json:"progress"`

	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StageEvent is published on every stage transition for external observers.
type StageEvent struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	Stage      JobStage  `json:"stage"`
	Progress   int       `json:"progress"`
	At         time.Time `json:"at"`
}
