// Package index provides an in-memory vector + keyword index over chunks
// with hybrid score fusion.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// DefaultAlpha is the vector/keyword fusion weight used when the caller
// does not specify one.
const DefaultAlpha = 0.7

// ErrInvalidQuery is returned for queries the index cannot rank
// meaningfully (e.g. empty query text).
var ErrInvalidQuery = errors.New("invalid query")

// Query is one hybrid search request.
type Query struct {
	// Text is the raw query text used for keyword scoring. Must be
	// non-empty.
	Text string

	// Vector is the query embedding; nil disables vector scoring.
	Vector []float32

	// K caps the result count; <= 0 defaults to 10.
	K int

	// Alpha weights vector vs keyword score in [0,1]; negative values
	// select DefaultAlpha.
	Alpha float64

	// DocumentID, when set, restricts results to one document. Filters
	// are applied before top-k selection.
	DocumentID string
}

// entry is one indexed chunk with precomputed scoring state.
type entry struct {
	chunk models.Chunk
	terms map[string]int
	norm  float64
	seq   int
}

// Index stores chunk vectors and tokenized text. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	byDoc   map[string][]int
	seq     int
}

// New creates an empty index.
func New() *Index {
	return &Index{byDoc: map[string][]int{}}
}

// Add indexes a chunk. Insertion order is remembered and breaks score
// ties, keeping output deterministic for identical inputs.
func (ix *Index) Add(chunk models.Chunk) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e := entry{
		chunk: chunk,
		terms: termFrequencies(chunk.Content),
		norm:  vectorNorm(chunk.Embedding),
		seq:   ix.seq,
	}
	ix.seq++
	ix.byDoc[chunk.DocumentID] = append(ix.byDoc[chunk.DocumentID], len(ix.entries))
	ix.entries = append(ix.entries, e)
}

// RemoveDocument drops all chunks of a document from the index.
func (ix *Index) RemoveDocument(documentID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	kept := ix.entries[:0]
	for _, e := range ix.entries {
		if e.chunk.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	ix.entries = kept

	ix.byDoc = map[string][]int{}
	for i, e := range ix.entries {
		ix.byDoc[e.chunk.DocumentID] = append(ix.byDoc[e.chunk.DocumentID], i)
	}
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Search returns the top-k results ranked by fused score descending:
// alpha*vectorScore + (1-alpha)*keywordScore.
func (ix *Index) Search(ctx context.Context, q Query) ([]models.SearchResult, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrInvalidQuery)
	}
	if q.Alpha < 0 {
		q.Alpha = DefaultAlpha
	}
	if q.Alpha > 1 {
		return nil, fmt.Errorf("%w: alpha %v outside [0,1]", ErrInvalidQuery, q.Alpha)
	}
	if q.K <= 0 {
		q.K = 10
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := uniqueTerms(q.Text)
	queryNorm := vectorNorm(q.Vector)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// Filter before scoring so top-k never discards qualifying results.
	candidates := make([]int, 0, len(ix.entries))
	if q.DocumentID != "" {
		candidates = append(candidates, ix.byDoc[q.DocumentID]...)
	} else {
		for i := range ix.entries {
			candidates = append(candidates, i)
		}
	}

	type scored struct {
		result models.SearchResult
		seq    int
	}
	results := make([]scored, 0, len(candidates))
	for _, i := range candidates {
		e := &ix.entries[i]
		vec := cosine(q.Vector, queryNorm, e.chunk.Embedding, e.norm)
		kw := keywordScore(queryTerms, e.terms)
		results = append(results, scored{
			result: models.SearchResult{
				Chunk:        e.chunk,
				DocumentID:   e.chunk.DocumentID,
				VectorScore:  vec,
				KeywordScore: kw,
				Score:        q.Alpha*vec + (1-q.Alpha)*kw,
			},
			seq: e.seq,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].result.Score != results[b].result.Score {
			return results[a].result.Score > results[b].result.Score
		}
		return results[a].seq < results[b].seq
	})

	if len(results) > q.K {
		results = results[:q.K]
	}
	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		out[i] = r.result
	}
	return out, nil
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func termFrequencies(text string) map[string]int {
	freq := map[string]int{}
	for _, t := range tokenize(text) {
		freq[t]++
	}
	return freq
}

func uniqueTerms(text string) []string {
	seen := map[string]struct{}{}
	var terms []string
	for _, t := range tokenize(text) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			terms = append(terms, t)
		}
	}
	return terms
}

// keywordScore is the fraction of query terms present in the chunk.
// Always in [0,1]; a chunk containing every query term scores 1.
func keywordScore(queryTerms []string, terms map[string]int) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	matched := 0
	for _, t := range queryTerms {
		if terms[t] > 0 {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
