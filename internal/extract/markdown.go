package extract

import (
	"context"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ForkIt369/ragpipe/internal/models"
)

// Markdown extracts structured content from Markdown: YAML frontmatter is
// stripped, headings are recorded with their offsets, pipe tables and
// standalone images become structured items removed from the text flow.
type Markdown struct{}

var (
	headingRegex   = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	imageLineRegex = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)]+)\)\s*$`)
	separatorRegex = regexp.MustCompile(`^\|?\s*:?-{3,}`)
)

// Extract implements Extractor.
func (m *Markdown) Extract(_ context.Context, data []byte, _ string) (*models.ExtractedContent, error) {
	body, frontmatter := splitFrontmatter(string(data))

	content := &models.ExtractedContent{}

	lines := strings.Split(body, "\n")
	var text strings.Builder

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if match := headingRegex.FindStringSubmatch(line); match != nil {
			content.Headings = append(content.Headings, models.Heading{
				Level:  len(match[1]),
				Text:   strings.TrimSpace(match[2]),
				Offset: text.Len(),
			})
			text.WriteString(strings.TrimSpace(match[2]))
			text.WriteString("\n")
			continue
		}

		if match := imageLineRegex.FindStringSubmatch(line); match != nil {
			content.Images = append(content.Images, models.Image{
				AltText: strings.TrimSpace(match[1]),
				Offset:  text.Len(),
			})
			continue
		}

		if isTableStart(lines, i) {
			table, consumed := parseTable(lines[i:])
			table.Offset = text.Len()
			content.Tables = append(content.Tables, table)
			i += consumed - 1
			continue
		}

		text.WriteString(line)
		text.WriteString("\n")
	}

	content.Text = text.String()

	// Surface a document title from frontmatter when present; callers that
	// care read it from the first heading otherwise.
	if title, ok := frontmatter["title"].(string); ok && title != "" {
		if len(content.Headings) == 0 || content.Headings[0].Level != 1 {
			content.Headings = append([]models.Heading{{Level: 1, Text: title, Offset: 0}}, content.Headings...)
		}
	}

	return content, nil
}

// splitFrontmatter strips a leading YAML frontmatter block. YAML errors
// are ignored, matching how most Markdown tooling behaves.
func splitFrontmatter(content string) (string, map[string]any) {
	fm := make(map[string]any)
	if !strings.HasPrefix(content, "---\n") {
		return content, fm
	}
	endIdx := strings.Index(content[4:], "\n---")
	if endIdx <= 0 {
		return content, fm
	}
	if err := yaml.Unmarshal([]byte(content[4:4+endIdx]), &fm); err != nil {
		fm = make(map[string]any)
	}
	return strings.TrimPrefix(content[4+endIdx+4:], "\n"), fm
}

// isTableStart reports whether lines[i] begins a pipe table (a header row
// followed by a separator row).
func isTableStart(lines []string, i int) bool {
	if !strings.HasPrefix(strings.TrimSpace(lines[i]), "|") {
		return false
	}
	if i+1 >= len(lines) {
		return false
	}
	next := strings.TrimSpace(lines[i+1])
	return strings.HasPrefix(next, "|") && separatorRegex.MatchString(strings.TrimPrefix(next, "|"))
}

// parseTable consumes a pipe table and returns it plus the number of
// lines consumed.
func parseTable(lines []string) (models.Table, int) {
	table := models.Table{Header: splitRow(lines[0])}

	consumed := 2 // header + separator
	for consumed < len(lines) {
		line := strings.TrimSpace(lines[consumed])
		if !strings.HasPrefix(line, "|") {
			break
		}
		table.Rows = append(table.Rows, splitRow(line))
		consumed++
	}
	return table, consumed
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")

	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}
