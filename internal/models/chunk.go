package models

// ChunkKind classifies the content of a chunk.
type ChunkKind string

const (
	KindText         ChunkKind = "text"
	KindCode         ChunkKind = "code"
	KindTable        ChunkKind = "table"
	KindImageCaption ChunkKind = "image-caption"
)

// ChunkMetadata is the small metadata bag attached to each chunk.
type ChunkMetadata struct {
	// Page is the 1-based page number the chunk starts on, 0 if unpaginated.
	Page int `json:"page,omitempty"`

	// HeadingPath is the section context, e.g. "Setup > Install".
	HeadingPath string `json:"heading_path,omitempty"`

	Kind ChunkKind `json:"kind"`

	// Merged marks a chunk produced by merging undersized neighbors.
	Merged bool `json:"merged,omitempty"`

	// Oversized marks a chunk kept whole despite exceeding the token
	// ceiling because no valid split point existed.
	Oversized bool `json:"oversized,omitempty"`

	// DimensionPadded marks a chunk whose embedding was truncated or
	// zero-padded to the model's declared dimensionality.
	DimensionPadded bool `json:"dimension_padded,omitempty"`

	// FromCache marks an embedding served from the content-hash cache.
	FromCache bool `json:"from_cache,omitempty"`
}

// Chunk is a bounded contiguous span of a document's extracted content,
// sized for embedding. Start/End are byte offsets into the source text;
// synthesized chunks (table rows, image captions) use the structural
// marker's offset for both.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Tokens     int    `json:"tokens"`

	// Index is the zero-based position within the document, assigned
	// after final merging in document order.
	Index int `json:"index"`

	// Embedding is nil until the embedding pipeline fills it.
	Embedding []float32 `json:"embedding,omitempty"`

	Metadata ChunkMetadata `json:"metadata"`
}
