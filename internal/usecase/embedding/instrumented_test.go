package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type healthyEmbedder struct {
	mockEmbedder
	healthErr error
}

func (h *healthyEmbedder) HealthCheck(_ context.Context) error { return h.healthErr }

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float64{0.1, 0.2, 0.3},
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestInstrumentedEmbedder_ErrorIsLoggedAndWrapped(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	inner := &mockEmbedder{err: domain.NewProviderError(domain.ErrEmbeddingRequestFailed, 500, "boom")}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.New(core))

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingRequestFailed) {
		t.Fatalf("expected ErrEmbeddingRequestFailed, got %v", err)
	}
	if logs.FilterMessage("Embedding request failed").Len() != 1 {
		t.Errorf("expected one error log entry, got %d", logs.Len())
	}
}

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	plain := NewInstrumentedEmbedder(&mockEmbedder{}, "test", "m", zap.NewNop())
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Errorf("embedder without health support must report healthy, got %v", err)
	}

	down := errors.New("unreachable")
	checked := NewInstrumentedEmbedder(&healthyEmbedder{healthErr: down}, "test", "m", zap.NewNop())
	if err := checked.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected inner health error, got %v", err)
	}
}
