// Package extract turns raw document bytes into structured content for
// the chunking pipeline.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// Extractor produces structured content from raw document bytes.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*models.ExtractedContent, error)
}

// ForContentType returns the extractor for the given MIME type or file
// extension hint.
func ForContentType(contentType string) (Extractor, error) {
	switch normalizeContentType(contentType) {
	case "text/markdown", "md", "markdown":
		return &Markdown{}, nil
	case "text/plain", "txt", "text", "":
		return &Plaintext{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.TrimPrefix(ct, ".")
}
