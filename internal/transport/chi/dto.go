package chi

import (
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	queryuc "github.com/kailas-cloud/flatrag/internal/usecase/query"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	CodeBadRequest              ErrorCode = "bad_request"
	CodeInvalidTopic            ErrorCode = "invalid_topic"
	CodeDocumentNotFound        ErrorCode = "document_not_found"
	CodeUnsupportedDocument     ErrorCode = "unsupported_document"
	CodeDocumentNameConflict    ErrorCode = "document_name_conflict"
	CodePathNotAllowed          ErrorCode = "path_not_allowed"
	CodeDimensionMismatch       ErrorCode = "dimension_mismatch"
	CodeChunkStoreCorrupt       ErrorCode = "chunk_store_corrupt"
	CodeEmbeddingNotConfigured  ErrorCode = "embedding_not_configured"
	CodeEmbeddingProviderError  ErrorCode = "embedding_provider_error"
	CodeCompletionProviderError ErrorCode = "completion_provider_error"
	CodeUpstreamTimeout         ErrorCode = "upstream_timeout"
	CodeInternalError           ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// IngestRequest names one document or several documents to ingest.
type IngestRequest struct {
	Path  string   `json:"path,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// IngestResponse reports one item per requested document.
type IngestResponse struct {
	Items []IngestItem `json:"items"`
}

// IngestItem is the outcome for one document.
type IngestItem struct {
	Path   string     `json:"path"`
	Status string     `json:"status"`
	Chunks int        `json:"chunks"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is an inline per-item error.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of search and query calls.
type SearchRequest struct {
	Question string   `json:"question"`
	Filters  []string `json:"filters,omitempty"`
	Raw      bool     `json:"raw,omitempty"`
}

// SearchResponse lists the ranked chunks.
type SearchResponse struct {
	Chunks   []result.ScoredChunk `json:"chunks"`
	Warnings []string             `json:"warnings,omitempty"`
}

// QueryResponse carries the text answer of a string-mode query.
type QueryResponse struct {
	Answer   string   `json:"answer"`
	Warnings []string `json:"warnings,omitempty"`
}

// RawQueryResponse carries a raw-mode query result.
type RawQueryResponse struct {
	queryuc.RawResult
	Warnings []string `json:"warnings,omitempty"`
}

// TopicsResponse lists stored topics.
type TopicsResponse struct {
	Topics []string `json:"topics"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
