package service

import (
	"context"
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
	"github.com/ForkIt369/ragpipe/internal/store"
	"github.com/ForkIt369/ragpipe/internal/tokenizer"
)

// stubProvider returns a fixed-dimension unit vector per text, or a scripted
// error for every call.
type stubProvider struct {
	dim   int
	err   error
	calls int
}

func (p *stubProvider) Embed(ctx context.Context, texts []string) (*embedding.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, p.dim)
		v[0] = 1
		vectors[i] = v
	}
	return &embedding.Result{Vectors: vectors, TokensUsed: len(texts)}, nil
}

func (p *stubProvider) Model() string  { return "stub-model" }
func (p *stubProvider) Dimension() int { return p.dim }

type serviceFixture struct {
	docs  *DocumentService
	jobs  *JobManager
	index *index.Index
	store *store.Store
}

func newServiceFixture(t *testing.T, provider embedding.Provider) *serviceFixture {
	t.Helper()

	st := openTestStore(t)
	jobs := NewJobManager(st)
	ix := index.New()
	cache, err := embedding.NewCache(256)
	require.NoError(t, err)

	embedCfg := embedding.DefaultConfig()
	embedCfg.Retry = embedding.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2, Jitter: 0}

	docs := NewDocumentService(DocumentServiceConfig{
		Store:     st,
		Jobs:      jobs,
		Index:     ix,
		Stats:     metrics.NewCollector(),
		Counter:   tokenizer.For("text-embedding-3-small"),
		ChunkOpts: chunker.DefaultOptions(),
		Provider:  provider,
		Limiter:   ratelimit.New(ratelimit.Config{}),
		Breaker:   breaker.New(5, 30*time.Second),
		Cache:     cache,
		EmbedCfg:  embedCfg,
	})
	return &serviceFixture{docs: docs, jobs: jobs, index: ix, store: st}
}

const sampleMarkdown = `# Release Notes

The deployment completed without incident. Rollback tooling stayed idle
the whole window. Latency held steady across every region we watched.

## Details

Database migrations ran in under a minute. The cache warmed before the
first traffic shift, so no request saw a cold path.
`

func TestDocumentService_Process(t *testing.T) {
	provider := &stubProvider{dim: 4}
	f := newServiceFixture(t, provider)

	doc := NewDocument("", "text/markdown", []byte(sampleMarkdown))
	raw := []byte(sampleMarkdown)

	require.NoError(t, f.docs.Process(context.Background(), doc, raw))

	assert.Equal(t, models.DocumentCompleted, doc.Status)
	assert.Equal(t, "Release Notes", doc.Title, "title falls back to the first heading")
	assert.Greater(t, doc.ChunkCount, 0)
	assert.Greater(t, provider.calls, 0)

	job, ok := f.jobs.Get(doc.ID)
	require.True(t, ok)
	assert.Equal(t, models.StageCompleted, job.Stage)
	assert.Equal(t, 100, job.Progress)

	assert.Equal(t, doc.ChunkCount, f.index.Len())

	// Document and chunks are persisted.
	var stored models.Document
	require.NoError(t, f.store.Get(store.CollectionDocuments, doc.ID, &stored))
	assert.Equal(t, models.DocumentCompleted, stored.Status)

	persisted := 0
	err := f.store.QueryByIndex(store.CollectionChunks, "document_id", doc.ID, func(raw []byte) error {
		persisted++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, persisted)
}

func TestDocumentService_ProviderFailureFailsJob(t *testing.T) {
	provider := &stubProvider{
		dim: 4,
		err: &embedding.ProviderError{Status: 400, Retryable: false, Message: "bad request"},
	}
	f := newServiceFixture(t, provider)

	doc := NewDocument("doomed", "text/markdown", []byte(sampleMarkdown))
	err := f.docs.Process(context.Background(), doc, []byte(sampleMarkdown))
	require.Error(t, err)

	assert.Equal(t, models.DocumentError, doc.Status)
	assert.NotEmpty(t, doc.Error)

	job, ok := f.jobs.Get(doc.ID)
	require.True(t, ok)
	assert.Equal(t, models.StageError, job.Stage)
	assert.NotEmpty(t, job.Error)

	// Nothing from the failed run reaches the index.
	assert.Equal(t, 0, f.index.Len())
}

func TestDocumentService_UnsupportedContentType(t *testing.T) {
	f := newServiceFixture(t, &stubProvider{dim: 4})

	doc := NewDocument("scan", "application/pdf", []byte("binary"))
	err := f.docs.Process(context.Background(), doc, []byte("binary"))
	require.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, models.DocumentError, doc.Status)
}

func TestDocumentService_EmptyContent(t *testing.T) {
	f := newServiceFixture(t, &stubProvider{dim: 4})

	doc := NewDocument("empty", "text/plain", []byte("   \n\t  "))
	err := f.docs.Process(context.Background(), doc, []byte("   \n\t  "))
	require.ErrorIs(t, err, ErrExtraction)
}

func TestDocumentService_ProcessAsync(t *testing.T) {
	f := newServiceFixture(t, &stubProvider{dim: 4})

	doc := NewDocument("async", "text/markdown", []byte(sampleMarkdown))
	job := f.docs.ProcessAsync(doc, []byte(sampleMarkdown))
	require.NotEmpty(t, job.ID)

	deadline := time.After(10 * time.Second)
	for {
		got, ok := f.jobs.GetJob(job.ID)
		require.True(t, ok)
		if got.Stage.Terminal() {
			assert.Equal(t, models.StageCompleted, got.Stage)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job stuck in stage %s", got.Stage)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSearchService_Search(t *testing.T) {
	provider := &stubProvider{dim: 4}
	f := newServiceFixture(t, provider)

	doc := NewDocument("", "text/markdown", []byte(sampleMarkdown))
	require.NoError(t, f.docs.Process(context.Background(), doc, []byte(sampleMarkdown)))

	search := NewSearchService(provider, f.index, metrics.NewCollector())

	results, err := search.Search(context.Background(), SearchOptions{
		Query: "cache warmed before traffic",
		K:     5,
		Alpha: -1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, doc.ID, r.DocumentID)
	}

	// Keyword overlap must lift the chunk that mentions the cache.
	assert.True(t, strings.Contains(strings.ToLower(results[0].Chunk.Content), "cache"),
		"top result should contain a query term, got: %q", results[0].Chunk.Content)
}

func TestSearchService_EmptyQuery(t *testing.T) {
	f := newServiceFixture(t, &stubProvider{dim: 4})
	search := NewSearchService(&stubProvider{dim: 4}, f.index, metrics.NewCollector())

	_, err := search.Search(context.Background(), SearchOptions{Query: "   "})
	require.ErrorIs(t, err, index.ErrInvalidQuery)
}

func TestRestoreIndex(t *testing.T) {
	st := openTestStore(t)

	chunk := models.Chunk{
		ID:         "c1",
		DocumentID: "doc1",
		Content:    "restored chunk",
		Tokens:     2,
		Embedding:  []float32{1, 0, 0, 0},
	}
	require.NoError(t, st.Put(store.CollectionChunks, chunk.ID, chunk,
		store.Index{Field: "document_id", Value: chunk.DocumentID}))

	ix := index.New()
	require.NoError(t, RestoreIndex(st, ix))
	assert.Equal(t, 1, ix.Len())
}
