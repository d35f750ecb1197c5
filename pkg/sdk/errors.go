package flatrag

import "github.com/kailas-cloud/flatrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrEmbeddingRequestFailed      = domain.ErrEmbeddingRequestFailed
	ErrEmbeddingNotConfigured      = domain.ErrEmbeddingNotConfigured
	ErrMalformedEmbeddingResponse  = domain.ErrMalformedEmbeddingResponse
	ErrDimensionMismatch           = domain.ErrDimensionMismatch
	ErrCompletionRequestFailed     = domain.ErrCompletionRequestFailed
	ErrMalformedCompletionResponse = domain.ErrMalformedCompletionResponse
	ErrInvalidFilterExpression     = domain.ErrInvalidFilterExpression
	ErrChunkStoreCorrupt           = domain.ErrChunkStoreCorrupt
	ErrTimeout                     = domain.ErrTimeout
	ErrInvalidTopic                = domain.ErrInvalidTopic
	ErrDocumentNotFound            = domain.ErrDocumentNotFound
	ErrUnsupportedDocument         = domain.ErrUnsupportedDocument
	ErrDocumentNameConflict        = domain.ErrDocumentNameConflict
)

// ProviderError carries the HTTP status and body of a failed provider call.
type ProviderError = domain.ProviderError
