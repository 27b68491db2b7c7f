package helper

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rag-assistant/internal/models"
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}

// IngestionSummary is the printable form of an IngestionReport; causes are
// flattened to strings since errors do not marshal.
type IngestionSummary struct {
	SourceID       string            `json:"source_id"`
	ChunksProduced int               `json:"chunks_produced"`
	ChunksEmbedded int               `json:"chunks_embedded"`
	ChunksStored   int               `json:"chunks_stored"`
	Partial        bool              `json:"partial"`
	Failures       map[string]string `json:"failures,omitempty"`
}

func ReportSummary(r *models.IngestionReport) IngestionSummary {
	if r == nil {
		return IngestionSummary{}
	}
	s := IngestionSummary{
		SourceID:       r.SourceID,
		ChunksProduced: r.ChunksProduced,
		ChunksEmbedded: r.ChunksEmbedded,
		ChunksStored:   r.ChunksStored,
		Partial:        r.Partial,
	}
	if len(r.Failures) > 0 {
		s.Failures = make(map[string]string, len(r.Failures))
		for _, f := range r.Failures {
			key := fmt.Sprintf("%s p.%d #%d", f.Chunk.SourceID, f.Chunk.PageNumber, f.Chunk.ChunkIndex)
			s.Failures[key] = f.Cause.Error()
		}
	}
	return s
}
