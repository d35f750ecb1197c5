package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector through the decorator chain.
// Cached reports whether the vector came from the embedding cache.
type EmbeddingResult struct {
	Embedding []float64
	Cached    bool
}

// Float64s widens an SDK float32 vector to the float64 vectors stored on disk.
func Float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
