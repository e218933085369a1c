// Package chunker splits extracted document content into token-bounded,
// semantically coherent chunks.
package chunker

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// ErrInvalidOptions indicates a chunking configuration error. It is
// returned before any work begins.
var ErrInvalidOptions = errors.New("invalid chunking options")

// TokenCounter counts tokens of a text for the embedding model in use.
type TokenCounter interface {
	Count(text string) int
}

// Strategy selects the text chunking algorithm. Tables and image captions
// always use their own strategies regardless of this setting.
type Strategy string

const (
	// StrategyAuto picks Semantic or Code from the content shape.
	StrategyAuto      Strategy = "auto"
	StrategySemantic  Strategy = "semantic"
	StrategyRecursive Strategy = "recursive"
	StrategyCode      Strategy = "code"
)

// Options configures a chunking run.
type Options struct {
	// MaxTokens is the token ceiling per chunk.
	MaxTokens int
	// MinTokens is the floor below which a chunk is a merge candidate.
	MinTokens int
	// OverlapTokens is the target size of the trailing window copied
	// into the next chunk.
	OverlapTokens int
	Strategy      Strategy
}

// DefaultOptions returns the default chunking parameters.
func DefaultOptions() Options {
	return Options{
		MaxTokens:     1000,
		MinTokens:     100,
		OverlapTokens: 200,
		Strategy:      StrategyAuto,
	}
}

// Validate rejects configurations that cannot produce valid chunks.
func (o Options) Validate() error {
	if o.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidOptions, o.MaxTokens)
	}
	if o.OverlapTokens < 0 {
		return fmt.Errorf("%w: overlap tokens must be >= 0, got %d", ErrInvalidOptions, o.OverlapTokens)
	}
	if o.MaxTokens <= o.OverlapTokens {
		return fmt.Errorf("%w: max tokens (%d) must exceed overlap tokens (%d)", ErrInvalidOptions, o.MaxTokens, o.OverlapTokens)
	}
	if o.MinTokens < 0 {
		return fmt.Errorf("%w: min tokens must be >= 0, got %d", ErrInvalidOptions, o.MinTokens)
	}
	return nil
}

// Chunker dispatches content to a chunking strategy, merges undersized
// fragments and assigns chunk metadata and indices.
type Chunker struct {
	counter TokenCounter
}

// New creates a Chunker using the given token counter.
func New(counter TokenCounter) *Chunker {
	return &Chunker{counter: counter}
}

// Chunk splits content into an ordered chunk sequence. Empty input yields
// zero chunks and no error. Chunking is deterministic: identical input and
// options produce identical output.
func (c *Chunker) Chunk(content models.ExtractedContent, opts Options) ([]models.Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if content.IsEmpty() {
		return nil, nil
	}

	var chunks []models.Chunk

	if strings.TrimSpace(content.Text) != "" {
		switch c.resolveStrategy(content.Text, opts.Strategy) {
		case StrategyCode:
			chunks = append(chunks, c.chunkCode(content.Text, opts)...)
		case StrategyRecursive:
			chunks = append(chunks, c.chunkRecursive(content.Text, opts)...)
		default:
			chunks = append(chunks, c.chunkSemantic(content.Text, opts)...)
		}
	}

	for _, table := range content.Tables {
		chunks = append(chunks, c.chunkTable(table, opts)...)
	}
	chunks = append(chunks, c.chunkImages(content.Images, opts)...)

	// Order by source position so table and caption chunks interleave
	// with prose at the right place.
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Start < chunks[j].Start
	})

	chunks = c.mergeUndersized(content.Text, chunks, opts)
	chunks = dropEmpty(chunks)

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Metadata.Page = pageFor(content.Pages, chunks[i].Start)
		chunks[i].Metadata.HeadingPath = headingPathFor(content.Headings, chunks[i].Start)
	}

	return chunks, nil
}

// resolveStrategy maps StrategyAuto to a concrete text strategy.
func (c *Chunker) resolveStrategy(text string, s Strategy) Strategy {
	if s != StrategyAuto && s != "" {
		return s
	}
	if looksLikeCode(text) {
		return StrategyCode
	}
	return StrategySemantic
}

// mergeUndersized joins adjacent undersized prose chunks when the merge
// still respects the token ceiling. Overlapping source slices are merged
// by re-slicing the original text, which deduplicates the overlap.
func (c *Chunker) mergeUndersized(text string, chunks []models.Chunk, opts Options) []models.Chunk {
	if opts.MinTokens <= 0 || len(chunks) < 2 {
		return chunks
	}

	out := make([]models.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if len(out) == 0 {
			out = append(out, ch)
			continue
		}
		last := &out[len(out)-1]
		if ch.Metadata.Kind != models.KindText || last.Metadata.Kind != models.KindText {
			out = append(out, ch)
			continue
		}
		if last.Tokens >= opts.MinTokens && ch.Tokens >= opts.MinTokens {
			out = append(out, ch)
			continue
		}

		merged := mergeContent(text, *last, ch)
		tokens := c.counter.Count(merged)
		if tokens > opts.MaxTokens {
			out = append(out, ch)
			continue
		}

		last.Content = merged
		last.End = ch.End
		last.Tokens = tokens
		last.Metadata.Merged = true
		last.Metadata.Oversized = false
	}
	return out
}

// mergeContent combines two adjacent chunks. Slice-backed chunks are
// re-sliced from the source so overlap text is not duplicated.
func mergeContent(text string, a, b models.Chunk) string {
	if sliceBacked(text, a) && sliceBacked(text, b) && b.Start <= a.End && a.Start <= b.Start {
		return text[a.Start:b.End]
	}
	return a.Content + "\n\n" + b.Content
}

func sliceBacked(text string, ch models.Chunk) bool {
	return ch.Start >= 0 && ch.End <= len(text) && ch.Start < ch.End && text[ch.Start:ch.End] == ch.Content
}

func dropEmpty(chunks []models.Chunk) []models.Chunk {
	out := chunks[:0]
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Content) != "" {
			out = append(out, ch)
		}
	}
	return out
}

// pageFor returns the 1-based page number containing offset, 0 if the
// content is unpaginated.
func pageFor(pages []models.Page, offset int) int {
	for _, p := range pages {
		if offset >= p.Start && offset < p.End {
			return p.Number
		}
	}
	return 0
}

// headingPathFor rebuilds the heading stack at offset, e.g. "Setup > Install".
func headingPathFor(headings []models.Heading, offset int) string {
	var stack []models.Heading
	for _, h := range headings {
		if h.Offset > offset {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
	}
	if len(stack) == 0 {
		return ""
	}
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = h.Text
	}
	return strings.Join(parts, " > ")
}
