package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/flatrag/internal/domain"
	dombatch "github.com/kailas-cloud/flatrag/internal/domain/batch"
	"github.com/kailas-cloud/flatrag/internal/domain/chunk"
	"github.com/kailas-cloud/flatrag/internal/logger"
	"github.com/kailas-cloud/flatrag/internal/metrics"
)

// DefaultConcurrency bounds IngestAll when no limit is configured.
const DefaultConcurrency = 4

// Service reads documents, splits them into line windows, embeds each window and stores the result.
type Service struct {
	docs        DocumentReader
	chunks      ChunkWriter
	embed       Embedder
	chunkSize   int
	concurrency int
}

// New creates an ingestion service. chunkSize is the number of lines per window.
func New(docs DocumentReader, chunks ChunkWriter, embed Embedder, chunkSize int) *Service {
	if chunkSize <= 0 {
		chunkSize = domain.DefaultChunkSize
	}
	return &Service{
		docs: docs, chunks: chunks, embed: embed,
		chunkSize: chunkSize, concurrency: DefaultConcurrency,
	}
}

// WithConcurrency configures how many documents IngestAll processes at once.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Ingest embeds every window of the document at path and replaces its chunk file under topic.
// Every window is re-embedded even when the document is unchanged.
func (s *Service) Ingest(ctx context.Context, topic, path string) (int, error) {
	ctx = logger.WithTopic(ctx, topic)
	doc, err := s.docs.Read(path)
	if err != nil {
		return 0, fmt.Errorf("read document: %w", err)
	}

	windows := chunk.Windows(doc.Body, s.chunkSize)
	chunks := make([]chunk.Chunk, 0, len(windows))
	for i, text := range windows {
		emb, err := s.embed.Embed(ctx, text)
		if err != nil {
			return 0, fmt.Errorf("vectorize chunk %d of %s: %w", i, doc.Name, err)
		}
		chunks = append(chunks, chunk.Chunk{
			Text:      text,
			Embedding: emb.Embedding,
			Meta:      doc.Meta,
		})
	}

	if err := s.chunks.Write(ctx, topic, doc.Path, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	metrics.IngestedChunksTotal.WithLabelValues(topic).Add(float64(len(chunks)))

	logger.FromContext(ctx).Info("Document ingested",
		zap.String("document", doc.Name),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// IngestAll ingests independent documents concurrently and reports one result per path, in input order.
// A failing document does not stop the others.
func (s *Service) IngestAll(ctx context.Context, topic string, paths []string) []dombatch.Result {
	ctx = logger.WithTopic(ctx, topic)
	results := make([]dombatch.Result, len(paths))

	// Paths sharing a chunk file would overwrite each other; the first one wins.
	owners := make(map[string]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, path := range paths {
		name := domain.DocumentName(path)
		if owner, ok := owners[name]; ok {
			results[i] = dombatch.NewError(path,
				fmt.Errorf("%w: %s and %s both store as %q", domain.ErrDocumentNameConflict, owner, path, name))
			continue
		}
		owners[name] = path

		g.Go(func() error {
			n, err := s.Ingest(gctx, topic, path)
			if err != nil {
				logger.FromContext(ctx).Warn("Document ingestion failed",
					zap.String("path", path),
					zap.Error(err),
				)
				results[i] = dombatch.NewError(path, err)
				return nil
			}
			results[i] = dombatch.NewOK(path, n)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Forget removes the chunk file of the document at path from topic.
func (s *Service) Forget(ctx context.Context, topic, path string) error {
	ctx = logger.WithTopic(ctx, topic)
	if err := s.chunks.Delete(ctx, topic, path); err != nil {
		return fmt.Errorf("forget document: %w", err)
	}
	logger.FromContext(ctx).Info("Document forgotten",
		zap.String("path", path),
	)
	return nil
}
