package search

import (
	"context"

	"github.com/kailas-cloud/flatrag/internal/domain"
	"github.com/kailas-cloud/flatrag/internal/domain/chunk"
)

// ChunkReader loads every stored chunk of a topic.
type ChunkReader interface {
	Read(ctx context.Context, topic string) ([]chunk.Chunk, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
