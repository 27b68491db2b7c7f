package models

// Page is one unit of extracted document text. Number is 1-based, 0 when the
// source has no pagination.
type Page struct {
	Number int
	Text   string
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string
	SourceID   string
	PageNumber int
	ChunkIndex int
}

// Ref identifies the chunk inside its source document.
func (c Chunk) Ref() ChunkRef {
	return ChunkRef{SourceID: c.SourceID, PageNumber: c.PageNumber, ChunkIndex: c.ChunkIndex}
}

// ChunkRef locates a chunk without carrying its text.
type ChunkRef struct {
	SourceID   string `json:"source_id"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
}

// EmbeddingRecord is the persisted unit of retrievable knowledge.
type EmbeddingRecord struct {
	Content    string
	Embedding  []float64
	SourceID   string
	PageNumber int
	ChunkIndex int
}

// RetrievalResult is a single ranked search hit.
type RetrievalResult struct {
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	SourceID   string  `json:"source_id"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
}

// AnswerResult is what the orchestrator hands back for one query.
type AnswerResult struct {
	Text         string            `json:"text"`
	UsedFallback bool              `json:"used_fallback"`
	ContextUsed  bool              `json:"context_used"`
	Failed       bool              `json:"failed"`
	Sources      []RetrievalResult `json:"sources,omitempty"`
}

// ChunkFailure records why a chunk did not make it into the store.
type ChunkFailure struct {
	Chunk ChunkRef
	Cause error
}

// IngestionReport summarises one call to the ingestion pipeline.
type IngestionReport struct {
	SourceID       string
	ChunksProduced int
	ChunksEmbedded int
	ChunksStored   int
	Failures       []ChunkFailure
	// Partial is set when the batch write failed or stored fewer records than were embedded.
	Partial bool
}
