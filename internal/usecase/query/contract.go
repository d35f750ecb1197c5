package query

import (
	"context"

	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
)

// Searcher ranks a topic's chunks against a question.
type Searcher interface {
	Search(ctx context.Context, topic, question string, filters filter.Set) ([]result.ScoredChunk, error)
}

// Completer turns a prompt into completion text.
// Enabled is false in echo mode, where Complete returns the prompt unchanged.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Enabled() bool
}
