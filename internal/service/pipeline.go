package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ForkIt369/ragpipe/internal/breaker"
	"github.com/ForkIt369/ragpipe/internal/chunker"
	"github.com/ForkIt369/ragpipe/internal/embedding"
	"github.com/ForkIt369/ragpipe/internal/extract"
	"github.com/ForkIt369/ragpipe/internal/index"
	"github.com/ForkIt369/ragpipe/internal/metrics"
	"github.com/ForkIt369/ragpipe/internal/models"
	"github.com/ForkIt369/ragpipe/internal/ratelimit"
	"github.com/ForkIt369/ragpipe/internal/store"
	"github.com/ForkIt369/ragpipe/internal/tokenizer"
)

// ErrExtraction wraps content extraction failures.
var ErrExtraction = errors.New("extraction failed")

// DocumentService runs the full pipeline for a document: extract, chunk,
// embed, index. Limiter, breaker and embedding cache are shared across all
// documents; everything else is per run.
type DocumentService struct {
	store   *store.Store
	jobs    *JobManager
	index   *index.Index
	stats   *metrics.Collector
	counter *tokenizer.Counter

	chunker   *chunker.Chunker
	chunkOpts chunker.Options

	provider embedding.Provider
	limiter  *ratelimit.Limiter
	breaker  *breaker.Breaker
	cache    *embedding.Cache
	embedCfg embedding.Config
}

// DocumentServiceConfig collects the pieces a DocumentService wires together.
type DocumentServiceConfig struct {
	Store     *store.Store
	Jobs      *JobManager
	Index     *index.Index
	Stats     *metrics.Collector
	Counter   *tokenizer.Counter
	ChunkOpts chunker.Options
	Provider  embedding.Provider
	Limiter   *ratelimit.Limiter
	Breaker   *breaker.Breaker
	Cache     *embedding.Cache
	EmbedCfg  embedding.Config
}

// NewDocumentService creates a document service.
func NewDocumentService(cfg DocumentServiceConfig) *DocumentService {
	return &DocumentService{
		store:     cfg.Store,
		jobs:      cfg.Jobs,
		index:     cfg.Index,
		stats:     cfg.Stats,
		counter:   cfg.Counter,
		chunker:   chunker.New(cfg.Counter),
		chunkOpts: cfg.ChunkOpts,
		provider:  cfg.Provider,
		limiter:   cfg.Limiter,
		breaker:   cfg.Breaker,
		cache:     cfg.Cache,
		embedCfg:  cfg.EmbedCfg,
	}
}

// NewDocument builds a pending document record for raw content.
func NewDocument(title, contentType string, raw []byte) *models.Document {
	return &models.Document{
		ID:          uuid.New().String()[:8],
		Title:       title,
		SizeBytes:   int64(len(raw)),
		ContentType: contentType,
		Status:      models.DocumentPending,
		CreatedAt:   time.Now(),
	}
}

// Process runs the pipeline for a document synchronously. A new job record
// tracks the run; its final state is available from the job manager.
func (s *DocumentService) Process(ctx context.Context, doc *models.Document, raw []byte) error {
	job := s.jobs.Create(doc.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.jobs.RegisterCancel(job.ID, cancel)

	return s.run(ctx, job.ID, doc, raw)
}

// ProcessAsync starts the pipeline in the background and returns the job
// immediately. The run can be aborted through JobManager.Cancel.
func (s *DocumentService) ProcessAsync(doc *models.Document, raw []byte) models.ProcessingJob {
	job := s.jobs.Create(doc.ID)

	ctx, cancel := context.WithCancel(context.Background())
	s.jobs.RegisterCancel(job.ID, cancel)

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("document pipeline panicked", "job_id", job.ID, "panic", r)
				s.fail(job.ID, doc, fmt.Errorf("internal panic: %v", r))
			}
		}()

		if err := s.run(ctx, job.ID, doc, raw); err != nil {
			slog.Error("document processing failed", "document_id", doc.ID, "error", err)
		}
	}()

	return job
}

func (s *DocumentService) run(ctx context.Context, jobID string, doc *models.Document, raw []byte) error {
	start := time.Now()

	doc.Status = models.DocumentProcessing
	s.persistDocument(doc)

	// Extract.
	if err := s.jobs.SetStage(jobID, models.StageExtracting); err != nil {
		return err
	}
	content, err := s.extractContent(ctx, doc, raw)
	if err != nil {
		return s.fail(jobID, doc, err)
	}
	if doc.Title == "" && len(content.Headings) > 0 {
		doc.Title = content.Headings[0].Text
	}

	// Chunk.
	if err := s.jobs.SetStage(jobID, models.StageChunking); err != nil {
		return err
	}
	chunkStart := time.Now()
	chunks, err := s.chunker.Chunk(*content, s.chunkOpts)
	if err != nil {
		return s.fail(jobID, doc, fmt.Errorf("chunking: %w", err))
	}
	s.stats.RecordTiming(metrics.OpChunk, time.Since(chunkStart))
	for i := range chunks {
		chunks[i].ID = uuid.New().String()
		chunks[i].DocumentID = doc.ID
	}

	// Embed.
	if err := s.jobs.SetStage(jobID, models.StageEmbedding); err != nil {
		return err
	}
	embedded, err := s.embedChunks(ctx, jobID, chunks)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("processing cancelled: %w", err)
		}
		return s.fail(jobID, doc, err)
	}

	// Index.
	if err := s.jobs.SetStage(jobID, models.StageIndexing); err != nil {
		return err
	}
	for i, chunk := range embedded {
		s.index.Add(chunk)
		s.persistChunk(chunk)
		s.jobs.UpdateProgress(jobID, models.StageIndexing, i+1, len(embedded))
	}

	doc.Status = models.DocumentCompleted
	doc.Error = ""
	doc.ChunkCount = len(embedded)
	doc.ProcessingTime = time.Since(start)
	s.persistDocument(doc)

	if err := s.jobs.Complete(jobID); err != nil {
		return err
	}

	slog.Info("document processed",
		"document_id", doc.ID,
		"chunks", len(embedded),
		"duration", doc.ProcessingTime)
	return nil
}

func (s *DocumentService) extractContent(ctx context.Context, doc *models.Document, raw []byte) (*models.ExtractedContent, error) {
	extractStart := time.Now()

	extractor, err := extract.ForContentType(doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	content, err := extractor.Extract(ctx, raw, doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if content.IsEmpty() {
		return nil, fmt.Errorf("%w: document has no extractable content", ErrExtraction)
	}

	s.stats.RecordTiming(metrics.OpExtract, time.Since(extractStart))
	return content, nil
}

// embedChunks runs the embedding pipeline with per-batch progress wired
// into the job. A fresh Pipeline per run keeps the progress callback
// job-scoped while limiter, breaker and cache stay shared.
func (s *DocumentService) embedChunks(ctx context.Context, jobID string, chunks []models.Chunk) ([]models.Chunk, error) {
	cfg := s.embedCfg
	cfg.OnBatchDone = func(done, total int) {
		s.jobs.UpdateProgress(jobID, models.StageEmbedding, done, total)
	}

	pipe := embedding.NewPipeline(s.provider, s.counter, s.limiter, s.breaker, s.cache, cfg)

	embedStart := time.Now()
	embedded, err := pipe.Run(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	var tokens int64
	for _, c := range embedded {
		if !c.Metadata.FromCache {
			tokens += int64(c.Tokens)
		}
	}
	s.stats.RecordEmbedding(time.Since(embedStart), tokens)
	return embedded, nil
}

func (s *DocumentService) fail(jobID string, doc *models.Document, cause error) error {
	doc.Status = models.DocumentError
	doc.Error = cause.Error()
	s.persistDocument(doc)

	if err := s.jobs.Fail(jobID, cause); err != nil {
		slog.Warn("failed to record job failure", "job_id", jobID, "error", err)
	}
	return cause
}

func (s *DocumentService) persistDocument(doc *models.Document) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(store.CollectionDocuments, doc.ID, doc); err != nil {
		slog.Warn("failed to persist document", "document_id", doc.ID, "error", err)
	}
}

func (s *DocumentService) persistChunk(chunk models.Chunk) {
	if s.store == nil {
		return
	}
	err := s.store.Put(store.CollectionChunks, chunk.ID, chunk,
		store.Index{Field: "document_id", Value: chunk.DocumentID})
	if err != nil {
		slog.Warn("failed to persist chunk", "chunk_id", chunk.ID, "error", err)
	}
}
