package ingest

import (
	"context"

	"github.com/kailas-cloud/flatrag/internal/domain"
	"github.com/kailas-cloud/flatrag/internal/domain/chunk"
)

// DocumentReader turns a source file into a document.
type DocumentReader interface {
	CanRead(path string) bool
	Read(path string) (domain.Document, error)
}

// ChunkWriter persists the chunks of one document under a topic.
type ChunkWriter interface {
	Write(ctx context.Context, topic, document string, chunks []chunk.Chunk) error
	Delete(ctx context.Context, topic, document string) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
