package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/domain"
	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	"github.com/kailas-cloud/flatrag/internal/domain/vector"
	"github.com/kailas-cloud/flatrag/internal/logger"
	"github.com/kailas-cloud/flatrag/internal/metrics"
)

// Service ranks a topic's chunks against a question with a linear scan.
type Service struct {
	chunks ChunkReader
	embed  Embedder
	params domain.RetrievalParams
}

// New creates a search service.
func New(chunks ChunkReader, embed Embedder, params domain.RetrievalParams) *Service {
	return &Service{chunks: chunks, embed: embed, params: params}
}

// Search loads the topic, applies filters, embeds the question and ranks by cosine similarity.
// The question is embedded only when at least one chunk survives filtering.
// The top MaxResults candidates are then cut by MinSimilarity and MaxDistance, both inclusive.
func (s *Service) Search(
	ctx context.Context, topic, question string, filters filter.Set,
) ([]result.ScoredChunk, error) {
	ctx = logger.WithTopic(ctx, topic)
	log := logger.FromContext(ctx)

	chunks, err := s.chunks.Read(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("read topic %s: %w", topic, err)
	}
	observe("loaded", len(chunks))

	candidates := make([]result.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if filters.Match(c.Meta) {
			candidates = append(candidates, result.ScoredChunk{Chunk: c})
		}
	}
	observe("filtered", len(candidates))

	if len(candidates) == 0 {
		log.Debug("No chunks passed filters",
			zap.Int("loaded", len(chunks)),
			zap.Int("filters", len(filters)),
		)
		return []result.ScoredChunk{}, nil
	}

	emb, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("vectorize question: %w", err)
	}

	scored := candidates[:0]
	for _, c := range candidates {
		sim, err := vector.Cosine(c.Embedding, emb.Embedding)
		if err != nil {
			return nil, fmt.Errorf("score chunk: %w", err)
		}
		if math.IsNaN(sim) {
			continue
		}
		dist, err := vector.Euclidean(c.Embedding, emb.Embedding)
		if err != nil {
			return nil, fmt.Errorf("score chunk: %w", err)
		}
		c.Score, c.Distance = sim, dist
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if s.params.MaxResults >= 0 && len(scored) > s.params.MaxResults {
		scored = scored[:s.params.MaxResults]
	}

	retained := make([]result.ScoredChunk, 0, len(scored))
	for _, c := range scored {
		if c.Score >= s.params.MinSimilarity && c.Distance <= s.params.MaxDistance {
			retained = append(retained, c)
		}
	}
	observe("retained", len(retained))

	log.Debug("Search completed",
		zap.Int("loaded", len(chunks)),
		zap.Int("candidates", len(candidates)),
		zap.Int("retained", len(retained)),
	)

	return retained, nil
}

func observe(stage string, n int) {
	metrics.SearchChunks.WithLabelValues(stage).Observe(float64(n))
}
