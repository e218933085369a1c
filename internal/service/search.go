package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ForkIt369/ragpipe/internal/embedding"
	"github.com/ForkIt369/ragpipe/internal/index"
	"github.com/ForkIt369/ragpipe/internal/metrics"
	"github.com/ForkIt369/ragpipe/internal/models"
	"github.com/ForkIt369/ragpipe/internal/store"
)

// SearchOptions control a hybrid search request.
type SearchOptions struct {
	Query string
	// K caps the number of results; zero means the index default.
	K int
	// Alpha balances vector vs keyword score. Negative means the
	// index default.
	Alpha float64
	// DocumentID restricts results to one document when non-empty.
	DocumentID string
}

// SearchService runs hybrid queries: the query text is embedded with the
// same provider used for ingestion, then fused vector plus keyword
// ranking happens in the index.
type SearchService struct {
	provider embedding.Provider
	index    *index.Index
	stats    *metrics.Collector
}

// NewSearchService creates a search service.
func NewSearchService(provider embedding.Provider, ix *index.Index, stats *metrics.Collector) *SearchService {
	return &SearchService{provider: provider, index: ix, stats: stats}
}

// Search embeds the query and returns fused ranked results.
func (s *SearchService) Search(ctx context.Context, opts SearchOptions) ([]models.SearchResult, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, index.ErrInvalidQuery
	}

	start := time.Now()

	res, err := s.provider.Embed(ctx, []string{opts.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(res.Vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(res.Vectors))
	}

	results, err := s.index.Search(ctx, index.Query{
		Text:       opts.Query,
		Vector:     res.Vectors[0],
		K:          opts.K,
		Alpha:      opts.Alpha,
		DocumentID: opts.DocumentID,
	})
	if err != nil {
		return nil, err
	}

	s.stats.RecordTiming(metrics.OpSearch, time.Since(start))
	return results, nil
}

// RestoreIndex reloads persisted chunks into the in-memory index so search
// works across restarts.
func RestoreIndex(st *store.Store, ix *index.Index) error {
	if st == nil {
		return nil
	}

	restored := 0
	err := st.List(store.CollectionChunks, func(raw []byte) error {
		var chunk models.Chunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		ix.Add(chunk)
		restored++
		return nil
	})
	if err != nil {
		return err
	}

	if restored > 0 {
		slog.Info("index restored", "chunks", restored)
	}
	return nil
}
