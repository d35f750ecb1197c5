// Package httpembed is the generic HTTP embedding provider:
// POST {input} with an optional bearer token, expecting {data:[{embedding}]}.
package httpembed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kailas-cloud/flatrag/internal/domain"
	"github.com/kailas-cloud/flatrag/internal/metrics"
)

const provider = "http"

// Config holds the embedding endpoint settings.
type Config struct {
	URL     string
	APIKey  string
	Model   string // sent only when non-empty
	Timeout time.Duration
}

// Embedder calls a generic embedding endpoint. It performs no retries.
type Embedder struct {
	client *resty.Client
	url    string
	apiKey string
	model  string
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates an HTTP embedding provider.
func NewEmbedder(cfg Config) *Embedder {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Embedder{
		client: client,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if e.url == "" {
		return domain.EmbeddingResult{}, domain.ErrEmbeddingNotConfigured
	}

	req := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(embedRequest{Input: text, Model: e.model})
	if e.apiKey != "" {
		req.SetAuthToken(e.apiKey)
	}

	start := time.Now()
	resp, err := req.Post(e.url)
	duration := time.Since(start)

	if err != nil {
		err = domain.WrapTimeout(err)
		e.fail(errorType(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embedding request: %w", err)
	}

	if !resp.IsSuccess() {
		e.fail("status")
		return domain.EmbeddingResult{}, domain.NewProviderError(
			domain.ErrEmbeddingRequestFailed, resp.StatusCode(), string(resp.Body()),
		)
	}

	vec, err := decode(resp.Body())
	if err != nil {
		e.fail("malformed_response")
		return domain.EmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.model).Observe(duration.Seconds())

	return domain.EmbeddingResult{Embedding: vec}, nil
}

func (e *Embedder) fail(errType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, errType).Inc()
}

// decode extracts data[0].embedding. Any other shape is malformed.
func decode(body []byte) ([]float64, error) {
	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedEmbeddingResponse, err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%w: no data", domain.ErrMalformedEmbeddingResponse)
	}
	if len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", domain.ErrMalformedEmbeddingResponse)
	}
	return parsed.Data[0].Embedding, nil
}

func errorType(err error) string {
	if domain.IsTimeout(err) {
		return "timeout"
	}
	return "transport"
}
