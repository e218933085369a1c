package models

// SearchResult is one ranked hit from hybrid search. Ephemeral: produced
// per query, never persisted.
type SearchResult struct {
	Chunk      Chunk  `json:"chunk"`
	DocumentID string `json:"document_id"`

	// VectorScore is the cosine similarity of the query and chunk vectors.
	VectorScore float64 `json:"vector_score"`

	// KeywordScore is the normalized term-overlap score.
	KeywordScore float64 `json:"keyword_score"`

	// Score is the fused ranking score:
	// alpha*VectorScore + (1-alpha)*KeywordScore.
	Score float64 `json:"score"`
}
