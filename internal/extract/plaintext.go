package extract

import (
	"context"
	"strings"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// Plaintext extracts UTF-8 text as-is. Form feed characters are treated
// as page breaks so paginated exports keep page attribution.
type Plaintext struct{}

// Extract implements Extractor.
func (p *Plaintext) Extract(_ context.Context, data []byte, _ string) (*models.ExtractedContent, error) {
	text := string(data)

	content := &models.ExtractedContent{
		Text:  strings.ReplaceAll(text, "\f", "\n"),
		Pages: splitPages(text),
	}
	return content, nil
}

// splitPages maps form-feed separated regions to page ranges. Offsets are
// into the text with page breaks replaced by newlines, so lengths line up.
func splitPages(text string) []models.Page {
	if !strings.Contains(text, "\f") {
		return nil
	}

	var pages []models.Page
	start := 0
	number := 1
	for i := 0; i < len(text); i++ {
		if text[i] == '\f' {
			pages = append(pages, models.Page{Number: number, Start: start, End: i})
			start = i + 1
			number++
		}
	}
	pages = append(pages, models.Page{Number: number, Start: start, End: len(text)})
	return pages
}
