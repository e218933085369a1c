package chunker

import (
	"strings"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// codeBoundaryPrefixes mark lines where a new top-level declaration
// starts. Splitting here keeps functions and classes intact.
var codeBoundaryPrefixes = []string{
	"func ", "type ", "class ", "def ", "function ", "public ", "private ",
	"protected ", "static ", "impl ", "fn ", "struct ", "interface ",
}

// importPrefixes identify dependency declarations that are replicated
// into every chunk that follows them, so each chunk compiles in context.
var importPrefixes = []string{
	"import ", "import(", "from ", "#include", "using ", "require ", "package ",
}

// chunkCode splits source code preferring function/class boundaries over
// arbitrary line counts. Import statements are replicated into each chunk
// after the first so every chunk is self-describing.
func (c *Chunker) chunkCode(text string, opts Options) []models.Chunk {
	lines := strings.SplitAfter(text, "\n")

	imports := collectImports(lines)
	importHeader := strings.Join(imports, "\n")
	headerTokens := 0
	if importHeader != "" {
		headerTokens = c.counter.Count(importHeader + "\n\n")
	}

	// Group lines into segments starting at declaration boundaries.
	var segments []span
	offset := 0
	segStart := 0
	for i, line := range lines {
		if i > 0 && isCodeBoundary(line) {
			segments = append(segments, span{start: segStart, end: offset})
			segStart = offset
		}
		offset += len(line)
	}
	if segStart < len(text) {
		segments = append(segments, span{start: segStart, end: len(text)})
	}

	budget := opts.MaxTokens - headerTokens
	if budget < 1 {
		budget = 1
	}

	var chunks []models.Chunk
	var cur []span
	curTok := 0

	flush := func(oversized bool) {
		if len(cur) == 0 {
			return
		}
		start, end := cur[0].start, cur[len(cur)-1].end
		body := text[start:end]
		content := body
		// The first chunk already contains the original imports.
		if importHeader != "" && len(chunks) > 0 && !strings.Contains(body, imports[0]) {
			content = importHeader + "\n\n" + body
		}
		ch := models.Chunk{
			Content: content,
			Start:   start,
			End:     end,
			Tokens:  c.counter.Count(content),
		}
		ch.Metadata.Kind = models.KindCode
		ch.Metadata.Oversized = oversized
		chunks = append(chunks, ch)
		cur = nil
		curTok = 0
	}

	for _, seg := range segments {
		tok := c.counter.Count(text[seg.start:seg.end])
		if tok > budget {
			flush(false)
			cur, curTok = []span{seg}, tok
			flush(true)
			continue
		}
		if curTok+tok > budget && len(cur) > 0 {
			flush(false)
		}
		cur = append(cur, seg)
		curTok += tok
	}
	flush(false)

	return chunks
}

func isCodeBoundary(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed != line {
		// Indented lines are never top-level declarations.
		return false
	}
	for _, p := range codeBoundaryPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func collectImports(lines []string) []string {
	var imports []string
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\n")
		stripped := strings.TrimSpace(trimmed)
		if inBlock {
			imports = append(imports, trimmed)
			if stripped == ")" {
				inBlock = false
			}
			continue
		}
		for _, p := range importPrefixes {
			if strings.HasPrefix(stripped, p) || stripped == strings.TrimSpace(p) {
				imports = append(imports, trimmed)
				if strings.HasSuffix(stripped, "(") {
					inBlock = true
				}
				break
			}
		}
	}
	return imports
}

// looksLikeCode is a cheap structural heuristic used by StrategyAuto.
func looksLikeCode(text string) bool {
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return false
	}
	hits := 0
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if isCodeBoundary(line) || strings.HasSuffix(s, "{") || strings.HasSuffix(s, ";") ||
			strings.HasPrefix(s, "}") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "#include") {
			hits++
		}
	}
	return hits*3 >= len(lines)
}
