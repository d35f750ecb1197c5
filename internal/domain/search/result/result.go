package result

import "github.com/kailas-cloud/flatrag/internal/domain/chunk"

// ScoredChunk is a chunk ranked against one query. Never persisted.
type ScoredChunk struct {
	chunk.Chunk
	Score    float64 `json:"score"`    // cosine similarity
	Distance float64 `json:"distance"` // euclidean distance
}

// Texts returns the chunk texts in rank order.
func Texts(chunks []ScoredChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
