package chunker

import (
	"strings"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// chunkImages turns extracted image captions (or OCR/alt text) into
// standalone chunks so figures stay retrievable. Images without any text
// are skipped; there is nothing to embed. A caption is never split, so
// OCR text longer than the ceiling is flagged Oversized like any other
// unsplittable span.
func (c *Chunker) chunkImages(images []models.Image, opts Options) []models.Chunk {
	var chunks []models.Chunk
	for _, img := range images {
		caption := img.Caption
		if strings.TrimSpace(caption) == "" {
			caption = img.AltText
		}
		if strings.TrimSpace(caption) == "" {
			continue
		}
		ch := models.Chunk{
			Content: caption,
			Start:   img.Offset,
			End:     img.Offset,
			Tokens:  c.counter.Count(caption),
		}
		ch.Metadata.Kind = models.KindImageCaption
		ch.Metadata.Oversized = ch.Tokens > opts.MaxTokens
		chunks = append(chunks, ch)
	}
	return chunks
}
