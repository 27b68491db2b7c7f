// Package chunker splits extracted text into overlapping word windows.
package chunker

import (
	"strings"

	"rag-assistant/internal/models"
)

// Chunk splits text on whitespace and returns windows of chunkSize words whose
// starts are chunkSize-overlap words apart. Windowing stops at the first window
// that reaches the end of the text, so only the last window may be shorter.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := chunkSize - overlap
	chunks := make([]string, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := min(start+chunkSize, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// Validate rejects sizes that cannot make progress.
func Validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return &models.ConfigurationError{Field: "chunk_size", Reason: "must be positive"}
	}
	if overlap < 0 || overlap >= chunkSize {
		return &models.ConfigurationError{Field: "chunk_overlap", Reason: "must satisfy 0 <= overlap < chunk_size"}
	}
	return nil
}

// ChunkPage chunks one page of a source document. Chunk indexes restart at 0 on every page.
func ChunkPage(sourceID string, page models.Page, chunkSize, overlap int) ([]models.Chunk, error) {
	texts, err := Chunk(page.Text, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			Content:    text,
			SourceID:   sourceID,
			PageNumber: page.Number,
			ChunkIndex: i,
		}
	}
	return chunks, nil
}

// Reassemble returns the word sequence a call to Chunk started from: the first
// chunkSize-overlap words of every chunk, plus the whole of the last one.
func Reassemble(chunks []string, chunkSize, overlap int) []string {
	step := chunkSize - overlap
	var words []string
	for i, c := range chunks {
		w := strings.Fields(c)
		if i < len(chunks)-1 && len(w) > step {
			w = w[:step]
		}
		words = append(words, w...)
	}
	return words
}
