package chunker

import (
	"strings"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// chunkTable packs table rows greedily under the token ceiling. The header
// row (and caption, if any) is repeated in every chunk derived from the
// table so each chunk is self-describing.
func (c *Chunker) chunkTable(table models.Table, opts Options) []models.Chunk {
	var headerParts []string
	if table.Caption != "" {
		headerParts = append(headerParts, table.Caption)
	}
	if len(table.Header) > 0 {
		headerParts = append(headerParts, strings.Join(table.Header, " | "))
	}
	header := strings.Join(headerParts, "\n")

	headerTokens := 0
	if header != "" {
		headerTokens = c.counter.Count(header + "\n")
	}
	budget := opts.MaxTokens - headerTokens
	if budget < 1 {
		budget = 1
	}

	var chunks []models.Chunk
	var rows []string
	rowTok := 0

	flush := func() {
		if len(rows) == 0 {
			return
		}
		parts := rows
		if header != "" {
			parts = append([]string{header}, rows...)
		}
		content := strings.Join(parts, "\n")
		ch := models.Chunk{
			Content: content,
			Start:   table.Offset,
			End:     table.Offset,
			Tokens:  c.counter.Count(content),
		}
		ch.Metadata.Kind = models.KindTable
		// The replicated header alone can push a chunk over the
		// ceiling, so the flag comes from the assembled content.
		ch.Metadata.Oversized = ch.Tokens > opts.MaxTokens
		chunks = append(chunks, ch)
		rows = nil
		rowTok = 0
	}

	for _, cells := range table.Rows {
		row := strings.Join(cells, " | ")
		if strings.TrimSpace(row) == "" {
			continue
		}
		tok := c.counter.Count(row)
		if tok > budget {
			flush()
			rows, rowTok = []string{row}, tok
			flush()
			continue
		}
		if rowTok+tok > budget && len(rows) > 0 {
			flush()
		}
		rows = append(rows, row)
		rowTok += tok
	}
	flush()

	return chunks
}
