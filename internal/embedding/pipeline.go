package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ForkIt369/ragpipe/internal/breaker"
	"github.com/ForkIt369/ragpipe/internal/models"
	"github.com/ForkIt369/ragpipe/internal/ratelimit"
)

// TokenCounter estimates the token cost of a text.
type TokenCounter interface {
	Count(text string) int
}

// RetryPolicy bounds the exponential backoff applied to transient
// provider failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      float64
}

// DefaultRetryPolicy returns the default backoff parameters.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Config configures the embedding pipeline.
type Config struct {
	// MaxBatchItems caps texts per provider call (provider item limit).
	MaxBatchItems int
	// MaxBatchTokens caps the summed token estimate per provider call.
	MaxBatchTokens int
	// Workers bounds concurrent in-flight batches.
	Workers int
	// CallTimeout aborts a hung provider call; the timeout is treated
	// as a retryable transient failure.
	CallTimeout time.Duration
	Retry       RetryPolicy

	// OnBatchDone, when set, is called after each batch settles with
	// the number of settled and total batches. Used for job progress.
	OnBatchDone func(done, total int)
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchItems:  128,
		MaxBatchTokens: 50000,
		Workers:        4,
		CallTimeout:    30 * time.Second,
		Retry:          DefaultRetryPolicy(),
	}
}

// PartialError reports exactly which chunks could not be embedded, so the
// caller can retry only those.
type PartialError struct {
	// Failed maps chunk ID to the cause of its batch failure.
	Failed map[string]error
}

func (e *PartialError) Error() string {
	ids := e.FailedChunkIDs()
	shown := ids
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return fmt.Sprintf("embedding failed for %d chunks: %s", len(ids), strings.Join(shown, ", "))
}

// FailedChunkIDs returns the failed chunk IDs in sorted order.
func (e *PartialError) FailedChunkIDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pipeline batches chunks into provider-sized requests, applying the
// shared rate limiter, circuit breaker, cache and retry policy. Either
// every input chunk receives a validated embedding or the returned error
// identifies which chunks failed.
type Pipeline struct {
	provider Provider
	counter  TokenCounter
	limiter  *ratelimit.Limiter
	breaker  *breaker.Breaker
	cache    *Cache // optional
	cfg      Config
}

// NewPipeline wires a pipeline. limiter and circuit breaker are shared
// process-wide resources; cache may be nil.
func NewPipeline(provider Provider, counter TokenCounter, limiter *ratelimit.Limiter, brk *breaker.Breaker, cache *Cache, cfg Config) *Pipeline {
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = DefaultConfig().MaxBatchItems
	}
	if cfg.MaxBatchTokens <= 0 {
		cfg.MaxBatchTokens = DefaultConfig().MaxBatchTokens
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Pipeline{
		provider: provider,
		counter:  counter,
		limiter:  limiter,
		breaker:  brk,
		cache:    cache,
		cfg:      cfg,
	}
}

// batch groups indices into the working chunk slice.
type batch struct {
	indices []int
	tokens  int
}

// Run embeds all chunks and returns a copy with embeddings set. On
// cancellation, in-flight batches finish (their quota is already spent)
// but no further batches are dispatched; the affected chunks are reported
// in the returned *PartialError.
func (p *Pipeline) Run(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, error) {
	out := slices.Clone(chunks)
	if len(out) == 0 {
		return out, nil
	}

	pending := p.resolveFromCache(out)
	batches := p.buildBatches(out, pending)
	if len(batches) == 0 {
		return out, nil
	}

	var (
		mu     sync.Mutex
		failed = map[string]error{}
		done   int
	)
	settle := func(b batch, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			for _, i := range b.indices {
				failed[out[i].ID] = err
			}
		}
		done++
		if p.cfg.OnBatchDone != nil {
			p.cfg.OnBatchDone(done, len(batches))
		}
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, b := range batches {
		b := b
		if err := ctx.Err(); err != nil {
			settle(b, fmt.Errorf("batch not dispatched: %w", err))
			continue
		}
		g.Go(func() error {
			settle(b, p.embedBatch(ctx, out, b))
			return nil
		})
	}
	_ = g.Wait()

	if hits, misses := p.cacheStats(); hits+misses > 0 {
		slog.Debug("embedding cache stats", "hits", hits, "misses", misses)
	}

	if len(failed) > 0 {
		return out, &PartialError{Failed: failed}
	}
	return out, nil
}

// resolveFromCache fills embeddings for cache hits and returns the
// indices still needing a provider call, in document order.
func (p *Pipeline) resolveFromCache(out []models.Chunk) []int {
	pending := make([]int, 0, len(out))
	for i := range out {
		if p.cache != nil {
			if vec, ok := p.cache.Get(p.provider.Model(), out[i].Content); ok {
				out[i].Embedding = vec
				out[i].Metadata.FromCache = true
				continue
			}
		}
		pending = append(pending, i)
	}
	return pending
}

// buildBatches partitions pending chunks into batches bounded by both the
// item cap and the token budget. A single chunk whose estimate exceeds
// the token budget travels alone.
func (p *Pipeline) buildBatches(out []models.Chunk, pending []int) []batch {
	var batches []batch
	var cur batch
	flush := func() {
		if len(cur.indices) > 0 {
			batches = append(batches, cur)
			cur = batch{}
		}
	}

	for _, i := range pending {
		tok := out[i].Tokens
		if tok <= 0 {
			tok = p.counter.Count(out[i].Content)
		}
		if len(cur.indices) >= p.cfg.MaxBatchItems || (len(cur.indices) > 0 && cur.tokens+tok > p.cfg.MaxBatchTokens) {
			flush()
		}
		cur.indices = append(cur.indices, i)
		cur.tokens += tok
	}
	flush()
	return batches
}

// embedBatch runs one batch through breaker, limiter, provider call and
// retry policy, then validates and applies the returned vectors.
func (p *Pipeline) embedBatch(ctx context.Context, out []models.Chunk, b batch) error {
	texts := make([]string, len(b.indices))
	for j, i := range b.indices {
		texts[j] = out[i].Content
	}

	var res *Result
	operation := func() error {
		// Circuit open is surfaced to the caller as a retryable
		// failure with a suggested retry-after; it is not retried
		// here so the cooldown is not burned by busy waiting.
		if err := p.breaker.Allow(); err != nil {
			return backoff.Permanent(err)
		}
		if err := p.limiter.Wait(ctx, b.tokens); err != nil {
			return backoff.Permanent(err)
		}

		r, err := p.call(ctx, texts)
		if err != nil {
			p.breaker.RecordFailure()
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		p.breaker.RecordSuccess()
		if r.HasQuota {
			p.limiter.UpdateFromHeaders(r.RemainingRequests, r.RemainingTokens, r.QuotaReset)
		}
		res = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.Retry.BaseDelay
	bo.Multiplier = p.cfg.Retry.Multiplier
	bo.RandomizationFactor = p.cfg.Retry.Jitter
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(p.cfg.Retry.MaxAttempts-1)), ctx))
	if err != nil {
		return err
	}

	if len(res.Vectors) != len(texts) {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(res.Vectors), len(texts))
	}

	want := p.provider.Dimension()
	for j, i := range b.indices {
		vec, padded := conformDimension(res.Vectors[j], want)
		if padded {
			slog.Warn("embedding dimension mismatch corrected",
				"chunk", out[i].ID, "got", len(res.Vectors[j]), "want", want, "model", p.provider.Model())
			out[i].Metadata.DimensionPadded = true
		}
		out[i].Embedding = vec
		if p.cache != nil && !padded {
			p.cache.Put(p.provider.Model(), out[i].Content, vec)
		}
	}
	return nil
}

// call invokes the provider with a per-call timeout. The call context is
// detached from the run context so an already-dispatched batch finishes
// even if the document's processing is cancelled; its quota is spent
// either way.
func (p *Pipeline) call(ctx context.Context, texts []string) (*Result, error) {
	callCtx := context.WithoutCancel(ctx)
	if p.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, p.cfg.CallTimeout)
		defer cancel()
	}
	return p.provider.Embed(callCtx, texts)
}

// conformDimension truncates or zero-pads vec to want entries. Downstream
// similarity math assumes fixed dimensionality.
func conformDimension(vec []float32, want int) ([]float32, bool) {
	if len(vec) == want {
		return vec, false
	}
	fixed := make([]float32, want)
	copy(fixed, vec)
	return fixed, true
}

func (p *Pipeline) cacheStats() (int64, int64) {
	if p.cache == nil {
		return 0, 0
	}
	return p.cache.Stats()
}
