// Package completion adapts prompts to chat-style or flat-style completion endpoints.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kailas-cloud/flatrag/internal/domain"
	"github.com/kailas-cloud/flatrag/internal/metrics"
)

// Request shapes.
const (
	ShapeChat = "chat"
	ShapeFlat = "flat"
)

// Provider kinds accepted in configuration.
const (
	ProviderChat = "chat"
	ProviderFlat = "flat"
	ProviderAuto = "auto"
)

// chatURLFragments select the chat shape when the provider kind is auto.
var chatURLFragments = []string{
	"openai", "groq", "mistral", "openrouter", "together", "deepseek", "/chat/completions",
}

// Config holds the completion endpoint settings.
type Config struct {
	URL         string // empty = echo mode
	APIKey      string
	Provider    string // chat, flat, auto
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// Lenient returns "" instead of ErrMalformedCompletionResponse for unknown response shapes.
	Lenient bool
}

// Client calls a completion endpoint. It performs no retries.
type Client struct {
	client *resty.Client
	cfg    Config
	shape  string
}

// NewClient creates a completion client.
func NewClient(cfg Config) *Client {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Client{
		client: client,
		cfg:    cfg,
		shape:  Shape(cfg.Provider, cfg.URL),
	}
}

// Shape resolves the request shape for a provider kind. Only auto inspects the URL.
func Shape(provider, url string) string {
	switch provider {
	case ProviderChat:
		return ShapeChat
	case ProviderAuto:
		lower := strings.ToLower(url)
		for _, frag := range chatURLFragments {
			if strings.Contains(lower, frag) {
				return ShapeChat
			}
		}
	}
	return ShapeFlat
}

// Enabled reports whether a completion endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type flatRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	NPredict    int     `json:"n_predict"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Content *string `json:"content"`
}

// Complete returns the completion text for prompt, or prompt itself in echo mode.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.Enabled() {
		return prompt, nil
	}

	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(c.body(prompt))
	if c.cfg.APIKey != "" {
		req.SetAuthToken(c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := req.Post(c.cfg.URL)
	duration := time.Since(start)

	if err != nil {
		err = domain.WrapTimeout(err)
		c.fail(errorType(err))
		return "", fmt.Errorf("completion request: %w", err)
	}

	if !resp.IsSuccess() {
		c.fail("status")
		return "", domain.NewProviderError(domain.ErrCompletionRequestFailed, resp.StatusCode(), string(resp.Body()))
	}

	text, err := c.parse(resp.Body())
	if err != nil {
		c.fail("malformed_response")
		return "", err
	}

	metrics.CompletionRequestsTotal.WithLabelValues(c.shape, "success").Inc()
	metrics.CompletionRequestDuration.WithLabelValues(c.shape).Observe(duration.Seconds())

	return text, nil
}

func (c *Client) body(prompt string) any {
	if c.shape == ShapeChat {
		return chatRequest{
			Model:       c.cfg.Model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: c.cfg.Temperature,
		}
	}
	return flatRequest{
		Prompt:      prompt,
		Temperature: c.cfg.Temperature,
		NPredict:    c.cfg.MaxTokens,
	}
}

// parse accepts choices[0].message.content or a top-level content field.
func (c *Client) parse(body []byte) (string, error) {
	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMalformedCompletionResponse, err)
	}

	if len(parsed.Choices) > 0 && parsed.Choices[0].Message.Content != nil {
		return strings.TrimSpace(*parsed.Choices[0].Message.Content), nil
	}
	if parsed.Content != nil {
		return strings.TrimSpace(*parsed.Content), nil
	}

	if c.cfg.Lenient {
		return "", nil
	}
	return "", fmt.Errorf("%w: no choices[0].message.content or content field", domain.ErrMalformedCompletionResponse)
}

func (c *Client) fail(errType string) {
	metrics.CompletionRequestsTotal.WithLabelValues(c.shape, "error").Inc()
	metrics.CompletionErrorsTotal.WithLabelValues(c.shape, errType).Inc()
}

func errorType(err error) string {
	if domain.IsTimeout(err) {
		return "timeout"
	}
	return "transport"
}
