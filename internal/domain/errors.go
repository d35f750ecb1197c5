package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrEmbeddingRequestFailed signals a non-2xx response from the embedding provider.
	ErrEmbeddingRequestFailed = errors.New("embedding request failed")
	// ErrEmbeddingNotConfigured signals an embedding call without a configured endpoint.
	ErrEmbeddingNotConfigured = errors.New("embedding endpoint not configured")
	// ErrMalformedEmbeddingResponse signals an unexpected embedding response shape.
	ErrMalformedEmbeddingResponse = errors.New("malformed embedding response")
	// ErrDimensionMismatch signals a comparison of vectors with unequal length.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrCompletionRequestFailed signals a non-2xx response from the completion provider.
	ErrCompletionRequestFailed = errors.New("completion request failed")
	// ErrMalformedCompletionResponse signals a completion response matching no known shape.
	ErrMalformedCompletionResponse = errors.New("malformed completion response")
	// ErrInvalidFilterExpression signals an unparsable filter expression. Recoverable.
	ErrInvalidFilterExpression = errors.New("invalid filter expression")
	// ErrChunkStoreCorrupt signals an unparsable stored chunk record.
	ErrChunkStoreCorrupt = errors.New("chunk store corrupt")
	// ErrTimeout signals an outbound provider call that exceeded its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrInvalidTopic signals a topic name that cannot be mapped to a store directory.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrDocumentNotFound signals a missing source document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrUnsupportedDocument signals a source document type without a reader.
	ErrUnsupportedDocument = errors.New("unsupported document type")
	// ErrDocumentNameConflict signals two source paths in one batch that map to the same chunk file.
	ErrDocumentNameConflict = errors.New("document name conflict")
	// ErrPathNotAllowed signals a document path outside the directory the caller may ingest from.
	ErrPathNotAllowed = errors.New("path not allowed")
)

// ProviderError carries the HTTP status and body of a failed provider call.
// Kind is ErrEmbeddingRequestFailed or ErrCompletionRequestFailed.
type ProviderError struct {
	Kind       error
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Kind.Error(), e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Kind.Error(), e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Kind }

// NewProviderError creates a provider error of the given kind.
func NewProviderError(kind error, statusCode int, body string) error {
	return &ProviderError{Kind: kind, StatusCode: statusCode, Body: body}
}

// DimensionMismatchError reports the lengths of the two compared vectors.
type DimensionMismatchError struct {
	Left  int
	Right int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: %d != %d", ErrDimensionMismatch.Error(), e.Left, e.Right)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// CorruptRecordError points at the stored record that failed to parse.
type CorruptRecordError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("%s: %s:%d: %v", ErrChunkStoreCorrupt.Error(), e.Path, e.Line, e.Err)
}

func (e *CorruptRecordError) Unwrap() []error { return []error{ErrChunkStoreCorrupt, e.Err} }

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// WrapTimeout tags timeout errors with ErrTimeout and returns other errors unchanged.
func WrapTimeout(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) || !IsTimeout(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTimeout, err)
}
