package chunker

import "github.com/ForkIt369/ragpipe/internal/models"

// chunkSemantic is the default prose strategy: accumulate whole sentences
// under the token ceiling, carrying a trailing overlap window into each
// new chunk. Sentences are never split.
func (c *Chunker) chunkSemantic(text string, opts Options) []models.Chunk {
	spans := splitSentences(text)
	return c.packSpans(text, spans, opts, models.KindText)
}

// packSpans accumulates contiguous spans into token-bounded chunks.
//
// When adding the next span would exceed MaxTokens the current chunk is
// closed and the next one starts with a trailing window of prior spans.
// The window is computed by walking backward from the split point and
// taking spans while their cumulative token count stays within
// OverlapTokens; walking backward avoids double-counting when the overlap
// covers more than one span. A single span that exceeds MaxTokens on its
// own is emitted whole as an oversized chunk: losing content is worse
// than an oversized chunk.
func (c *Chunker) packSpans(text string, spans []span, opts Options, kind models.ChunkKind) []models.Chunk {
	for i := range spans {
		spans[i].tokens = c.counter.Count(text[spans[i].start:spans[i].end])
	}

	var (
		chunks []models.Chunk
		cur    []span
		curTok int
	)

	flush := func(oversized bool) {
		if len(cur) == 0 {
			return
		}
		start, end := cur[0].start, cur[len(cur)-1].end
		content := text[start:end]
		ch := models.Chunk{
			Content: content,
			Start:   start,
			End:     end,
			Tokens:  c.counter.Count(content),
		}
		ch.Metadata.Kind = kind
		ch.Metadata.Oversized = oversized
		chunks = append(chunks, ch)

		// Seed the next chunk with the trailing overlap window.
		var window []span
		windowTok := 0
		for i := len(cur) - 1; i >= 0 && !oversized; i-- {
			if windowTok+cur[i].tokens > opts.OverlapTokens {
				break
			}
			windowTok += cur[i].tokens
			window = append([]span{cur[i]}, window...)
		}
		cur = window
		curTok = windowTok
	}

	for _, s := range spans {
		if s.tokens > opts.MaxTokens {
			// No valid split point inside a single span.
			flush(false)
			cur, curTok = []span{s}, s.tokens
			flush(true)
			continue
		}

		if curTok+s.tokens > opts.MaxTokens && len(cur) > 0 {
			flush(false)
			// The overlap window plus the pending span may still
			// exceed the ceiling; shed the oldest window spans
			// until it fits.
			for len(cur) > 0 && curTok+s.tokens > opts.MaxTokens {
				curTok -= cur[0].tokens
				cur = cur[1:]
			}
		}

		cur = append(cur, s)
		curTok += s.tokens
	}
	flush(false)

	return chunks
}
