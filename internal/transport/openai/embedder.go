package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/flatrag/internal/domain"
	"github.com/kailas-cloud/flatrag/internal/metrics"
)

const provider = "openai"

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string // empty = api.openai.com
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
}

// Embed implements domain.Embedder with transport-level metrics.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		err = parseAPIError(err)
		e.fail(errorType(err))
		return domain.EmbeddingResult{}, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		e.fail("empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding data: %w", domain.ErrMalformedEmbeddingResponse)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, string(e.model)).Observe(duration.Seconds())

	return domain.EmbeddingResult{Embedding: domain.Float64s(resp.Data[0].Embedding)}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", domain.WrapTimeout(err))
	}
	return nil
}

func (e *Embedder) fail(errType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, string(e.model), "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(provider, string(e.model), errType).Inc()
}

// parseAPIError maps SDK errors onto domain.ProviderError, keeping status and detail.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderError(domain.ErrEmbeddingRequestFailed, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := extractDetail(reqErr.Body)
		if body == "" {
			body = string(reqErr.Body)
		}
		return domain.NewProviderError(domain.ErrEmbeddingRequestFailed, reqErr.HTTPStatusCode, body)
	}

	return fmt.Errorf("embedding request: %w", domain.WrapTimeout(err))
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrEmbeddingRequestFailed):
		return "api_error"
	}
	return "transport"
}
