// Package models defines data structures for the ragpipe document pipeline.
package models

import "time"

// DocumentStatus is the lifecycle status of a document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentError      DocumentStatus = "error"
)

// Document represents an ingested document. It is created on ingestion and
// mutated only by the job state machine; chunking and embedding code never
// touches it directly.
type Document struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	SizeBytes   int64          `json:"size_bytes"`
	ContentType string         `json:"content_type"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	ChunkCount  int            `json:"chunk_count"`

	// ProcessingTime is the total wall-clock duration of the last pipeline run.
	ProcessingTime time.Duration `json:"processing_time"`

	CreatedAt time.Time `json:"created_at"`
}
