package chunker

import (
	"strings"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// recursiveSeparators is the split hierarchy, coarsest first: paragraph,
// line, sentence-ish, word.
var recursiveSeparators = []string{"\n\n", "\n", ". ", " "}

// chunkRecursive splits text by a separator hierarchy: pieces too large
// for the token ceiling are re-split with the next finer separator, then
// packed into chunks with the same overlap rules as the semantic strategy.
func (c *Chunker) chunkRecursive(text string, opts Options) []models.Chunk {
	leaves := c.splitRecursive(text, span{start: 0, end: len(text)}, recursiveSeparators, opts.MaxTokens)
	return c.packSpans(text, leaves, opts, models.KindText)
}

// splitRecursive reduces s to contiguous spans each within maxTokens,
// except where no separator remains to split on. Separators stay attached
// to the preceding piece so the spans tile the input exactly.
func (c *Chunker) splitRecursive(text string, s span, seps []string, maxTokens int) []span {
	if c.counter.Count(text[s.start:s.end]) <= maxTokens {
		return []span{s}
	}
	if len(seps) == 0 {
		// Atomic oversized piece; packSpans flags it.
		return []span{s}
	}

	sep := seps[0]
	segment := text[s.start:s.end]
	var pieces []span
	start := s.start
	for {
		idx := strings.Index(text[start:s.end], sep)
		if idx < 0 {
			break
		}
		end := start + idx + len(sep)
		pieces = append(pieces, span{start: start, end: end})
		start = end
	}
	if start < s.end {
		pieces = append(pieces, span{start: start, end: s.end})
	}

	if len(pieces) <= 1 || !strings.Contains(segment, sep) {
		return c.splitRecursive(text, s, seps[1:], maxTokens)
	}

	var out []span
	for _, p := range pieces {
		out = append(out, c.splitRecursive(text, p, seps[1:], maxTokens)...)
	}
	return out
}
