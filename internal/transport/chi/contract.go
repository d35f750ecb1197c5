package chi

import (
	"context"

	dombatch "github.com/kailas-cloud/flatrag/internal/domain/batch"
	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/flatrag/internal/usecase/health"
	queryuc "github.com/kailas-cloud/flatrag/internal/usecase/query"
)

// Engine is the set of operations exposed over HTTP.
type Engine interface {
	Ingest(ctx context.Context, topic, path string) (int, error)
	IngestAll(ctx context.Context, topic string, paths []string) ([]dombatch.Result, error)
	Search(ctx context.Context, topic, question string, filters filter.Set) ([]result.ScoredChunk, error)
	Query(ctx context.Context, topic, question string, filters filter.Set) (string, error)
	QueryRaw(ctx context.Context, topic, question string, filters filter.Set) (queryuc.RawResult, error)
	Topics(ctx context.Context) ([]string, error)
	Health(ctx context.Context) healthuc.Report
}
