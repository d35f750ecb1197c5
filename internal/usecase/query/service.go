package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	"github.com/kailas-cloud/flatrag/internal/logger"
)

// RawResult is the structured answer of a query.
// Response is set only when a completion endpoint is configured.
type RawResult struct {
	Chunks   []result.ScoredChunk `json:"chunks"`
	Response *string              `json:"response,omitempty"`
	Prompt   string               `json:"prompt"`
}

// Service composes retrieval, prompt assembly and completion.
type Service struct {
	search   Searcher
	complete Completer
}

// New creates a query service.
func New(search Searcher, complete Completer) *Service {
	return &Service{search: search, complete: complete}
}

// Query answers question from topic. Without retained chunks it returns NoRelevantChunks.
// In echo mode the assembled prompt is returned instead of a completion.
func (s *Service) Query(ctx context.Context, topic, question string, filters filter.Set) (string, error) {
	ctx = logger.WithTopic(ctx, topic)
	chunks, err := s.search.Search(ctx, topic, question, filters)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(chunks) == 0 {
		return NoRelevantChunks, nil
	}

	prompt := BuildPrompt(result.Texts(chunks), question)
	if !s.complete.Enabled() {
		return prompt, nil
	}

	answer, err := s.complete.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	logger.FromContext(ctx).Debug("Query answered",
		zap.Int("chunks", len(chunks)),
	)
	return answer, nil
}

// QueryRaw answers question from topic with the retained chunks and the prompt.
// Without retained chunks it returns an empty result and makes no completion call.
func (s *Service) QueryRaw(ctx context.Context, topic, question string, filters filter.Set) (RawResult, error) {
	chunks, err := s.search.Search(ctx, topic, question, filters)
	if err != nil {
		return RawResult{}, fmt.Errorf("search: %w", err)
	}
	if len(chunks) == 0 {
		return RawResult{Chunks: []result.ScoredChunk{}}, nil
	}

	out := RawResult{
		Chunks: chunks,
		Prompt: BuildPrompt(result.Texts(chunks), question),
	}
	if !s.complete.Enabled() {
		return out, nil
	}

	answer, err := s.complete.Complete(ctx, out.Prompt)
	if err != nil {
		return RawResult{}, fmt.Errorf("complete: %w", err)
	}
	out.Response = &answer
	return out, nil
}
