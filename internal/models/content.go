package models

// ExtractedContent is the raw output of a format-specific extractor: plain
// text plus optional structural hints. Immutable once produced.
type ExtractedContent struct {
	Text     string    `json:"text"`
	Headings []Heading `json:"headings,omitempty"`
	Tables   []Table   `json:"tables,omitempty"`
	Images   []Image   `json:"images,omitempty"`
	Pages    []Page    `json:"pages,omitempty"`
}

// Heading is a structural marker at a byte offset into Text.
type Heading struct {
	Level  int    `json:"level"`
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

// Table holds rows of cells extracted from the source document.
// Offset is the position in Text where the table appeared, used for
// ordering table chunks relative to prose chunks.
type Table struct {
	Caption string     `json:"caption,omitempty"`
	Header  []string   `json:"header,omitempty"`
	Rows    [][]string `json:"rows"`
	Offset  int        `json:"offset"`
}

// Image carries the extracted caption or OCR text of an embedded image.
type Image struct {
	Caption string `json:"caption,omitempty"`
	AltText string `json:"alt_text,omitempty"`
	Offset  int    `json:"offset"`
}

// Page marks a page boundary as a half-open byte range [Start, End) in Text.
type Page struct {
	Number int `json:"number"`
	Start  int `json:"start"`
	End    int `json:"end"`
}

// IsEmpty reports whether the content has nothing to chunk.
func (c ExtractedContent) IsEmpty() bool {
	return len(c.Text) == 0 && len(c.Tables) == 0 && len(c.Images) == 0
}
