package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ForkIt369/ragpipe/internal/breaker"
	"github.com/ForkIt369/ragpipe/internal/chunker"
	"github.com/ForkIt369/ragpipe/internal/embedding"
	"github.com/ForkIt369/ragpipe/internal/index"
	"github.com/ForkIt369/ragpipe/internal/metrics"
	"github.com/ForkIt369/ragpipe/internal/models"
	"github.com/ForkIt369/ragpipe/internal/ratelimit"
	"github.com/ForkIt369/ragpipe/internal/service"
	"github.com/ForkIt369/ragpipe/internal/store"
	"github.com/ForkIt369/ragpipe/internal/tokenizer"
)

// unitProvider embeds every text as the same unit vector, so ranking in
// tests is driven entirely by keyword overlap.
type unitProvider struct{ dim int }

func (p *unitProvider) Embed(_ context.Context, texts []string) (*embedding.Result, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, p.dim)
		v[0] = 1
		vectors[i] = v
	}
	return &embedding.Result{Vectors: vectors, TokensUsed: len(texts)}, nil
}

func (p *unitProvider) Model() string  { return "unit-model" }
func (p *unitProvider) Dimension() int { return p.dim }

type apiFixture struct {
	handler http.Handler
	docs    *service.DocumentService
	jobs    *service.JobManager
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	provider := &unitProvider{dim: 4}
	jobs := service.NewJobManager(st)
	ix := index.New()
	stats := metrics.NewCollector()
	cache, err := embedding.NewCache(256)
	require.NoError(t, err)

	docs := service.NewDocumentService(service.DocumentServiceConfig{
		Store:     st,
		Jobs:      jobs,
		Index:     ix,
		Stats:     stats,
		Counter:   tokenizer.For("text-embedding-3-small"),
		ChunkOpts: chunker.DefaultOptions(),
		Provider:  provider,
		Limiter:   ratelimit.New(ratelimit.Config{}),
		Breaker:   breaker.New(5, 30*time.Second),
		Cache:     cache,
		EmbedCfg:  embedding.DefaultConfig(),
	})
	search := service.NewSearchService(provider, ix, stats)

	srv := New(":0", docs, search, jobs, st, stats, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &apiFixture{handler: srv.Handler(), docs: docs, jobs: jobs}
}

func (f *apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// ingest runs the pipeline synchronously so tests see a settled state.
func (f *apiFixture) ingest(t *testing.T, contentType, content string) *models.Document {
	t.Helper()
	doc := service.NewDocument("", contentType, []byte(content))
	require.NoError(t, f.docs.Process(context.Background(), doc, []byte(content)))
	return doc
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestIngestDocument(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost,
		"/api/documents?title=notes&content_type=text/markdown",
		strings.NewReader("# Notes\n\nShort but real content for the pipeline."))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		Document models.Document      `json:"document"`
		Job      models.ProcessingJob `json:"job"`
	}
	decodeBody(t, rec, &body)
	assert.NotEmpty(t, body.Document.ID)
	assert.Equal(t, "notes", body.Document.Title)
	assert.Equal(t, body.Document.ID, body.Job.DocumentID)

	// The background run eventually reaches a terminal stage.
	deadline := time.After(10 * time.Second)
	for {
		job, ok := f.jobs.GetJob(body.Job.ID)
		require.True(t, ok)
		if job.Stage.Terminal() {
			assert.Equal(t, models.StageCompleted, job.Stage)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job stuck in stage %s", job.Stage)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestIngestDocument_EmptyBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/documents", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.ingest(t, "text/markdown",
		"# Runbook\n\nRestart the scheduler before rotating credentials. The\nscheduler drains its queue within a minute.")

	rec := f.get(t, "/api/search?q=restart+the+scheduler&k=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []models.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Results)
	assert.Equal(t, len(body.Results), body.Count)
	assert.Equal(t, doc.ID, body.Results[0].DocumentID)
}

func TestSearchEndpoint_BadRequests(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing query", "/api/search"},
		{"blank query", "/api/search?q=%20%20"},
		{"non-numeric k", "/api/search?q=x&k=many"},
		{"negative k", "/api/search?q=x&k=-2"},
		{"non-numeric alpha", "/api/search?q=x&alpha=high"},
		{"alpha above one", "/api/search?q=x&alpha=1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.path)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetDocument(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.ingest(t, "text/plain", "plain text body for retrieval")

	rec := f.get(t, "/api/documents/"+doc.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Document
	decodeBody(t, rec, &got)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, models.DocumentCompleted, got.Status)

	rec = f.get(t, "/api/documents/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.ingest(t, "text/plain", "content that produces a completed job")

	rec := f.get(t, "/api/jobs/"+doc.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var job models.ProcessingJob
	decodeBody(t, rec, &job)
	assert.Equal(t, doc.ID, job.DocumentID)
	assert.Equal(t, models.StageCompleted, job.Stage)
	assert.Equal(t, 100, job.Progress)

	rec = f.get(t, "/api/jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	f := newAPIFixture(t)
	f.ingest(t, "text/plain", "first document")
	f.ingest(t, "text/plain", "second document")

	rec := f.get(t, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs []models.ProcessingJob `json:"jobs"`
	}
	decodeBody(t, rec, &body)
	assert.Len(t, body.Jobs, 2)
}

func TestGetStats(t *testing.T) {
	f := newAPIFixture(t)
	f.ingest(t, "text/plain", "a document so the counters move")

	rec := f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap metrics.Snapshot
	decodeBody(t, rec, &snap)
	require.NotNil(t, snap.Chunk)
	assert.Equal(t, int64(1), snap.Chunk.Count)
}
