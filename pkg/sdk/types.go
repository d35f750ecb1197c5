package flatrag

import (
	dombatch "github.com/kailas-cloud/flatrag/internal/domain/batch"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/flatrag/internal/usecase/health"
	queryuc "github.com/kailas-cloud/flatrag/internal/usecase/query"
)

// NoRelevantChunks is the answer returned when no chunk passes the ranking.
const NoRelevantChunks = queryuc.NoRelevantChunks

// Chunk is a ranked chunk returned by Search.
type Chunk struct {
	Text     string
	Meta     map[string]any
	Score    float64 // cosine similarity to the question
	Distance float64 // euclidean distance to the question
}

// RawAnswer exposes everything a query produced.
// Response is nil when no completion endpoint answered.
type RawAnswer struct {
	Chunks   []Chunk
	Prompt   string
	Response *string
}

// IngestResult reports the outcome of one document in IngestAll.
type IngestResult struct {
	Path   string
	Chunks int
	Err    error
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

func chunksFromScored(in []result.ScoredChunk) []Chunk {
	out := make([]Chunk, len(in))
	for i, c := range in {
		out[i] = Chunk{Text: c.Text, Meta: c.Meta, Score: c.Score, Distance: c.Distance}
	}
	return out
}

func ingestResultsFromBatch(in []dombatch.Result) []IngestResult {
	out := make([]IngestResult, len(in))
	for i, r := range in {
		out[i] = IngestResult{Path: r.Path(), Chunks: r.Chunks(), Err: r.Err()}
	}
	return out
}

func healthFromReport(report healthuc.Report) HealthStatus {
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{Status: string(report.Status), Checks: checks}
}
