package vectorstore

import (
	"strconv"

	"rag-assistant/internal/models"
)

// textFields lists the stored text field names in order of preference.
var textFields = []string{models.FieldContent, models.FieldTextChunk, models.FieldText}

// RecordFields is the stored document shape used by document backends.
func RecordFields(r models.EmbeddingRecord) map[string]any {
	return map[string]any{
		models.FieldContent:    r.Content,
		models.FieldSource:     r.SourceID,
		models.FieldPage:       r.PageNumber,
		models.FieldChunkIndex: r.ChunkIndex,
	}
}

// Project turns a raw match into a result. ok is false when the document
// carries no text under any known field name.
func Project(m Match) (models.RetrievalResult, bool) {
	text, ok := firstString(m.Fields, textFields...)
	if !ok {
		return models.RetrievalResult{}, false
	}
	source, _ := firstString(m.Fields, models.FieldSource)
	return models.RetrievalResult{
		Content:    text,
		Score:      m.Score,
		SourceID:   source,
		PageNumber: intField(m.Fields, models.FieldPage),
		ChunkIndex: intField(m.Fields, models.FieldChunkIndex),
	}, true
}

func firstString(fields map[string]any, names ...string) (string, bool) {
	for _, name := range names {
		if s, ok := fields[name].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func intField(fields map[string]any, name string) int {
	switch v := fields[name].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
