package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/db"
	"github.com/kailas-cloud/flatrag/internal/db/redis"
	"github.com/kailas-cloud/flatrag/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float64{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	// GET → ErrKeyNotFound (cache miss)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	// SET → OK (cache put)
	var setCalled bool
	ms.setFn = func(_ context.Context, key string, _ []byte) error {
		setCalled = true
		if !strings.HasPrefix(key, "flatrag:emb:") {
			t.Errorf("unexpected key: %s", key)
		}
		return nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.Cached {
		t.Error("expected Cached=false on miss")
	}
	if !setCalled {
		t.Fatal("expected SET to be called for cache put")
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float64{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	cached := vectorToCacheBytes([]float64{0.4, 0.5, 0.6})

	// GET → cached bytes
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if !result.Cached {
		t.Error("expected Cached=true on hit")
	}
	if inner.calls != 0 {
		t.Errorf("expected no inner calls on hit, got %d", inner.calls)
	}
}

func TestEmbed_TTL(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float64{1}}}
	ce, ms := newTestCachedEmbedder(t, inner, WithTTL(time.Hour), WithKeyPrefix("p:"))

	var gotTTL time.Duration
	var gotKey string
	ms.setWithTTLFn = func(_ context.Context, key string, _ []byte, ttl time.Duration) error {
		gotKey, gotTTL = key, ttl
		return nil
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		t.Error("Set must not be used when a TTL is configured")
		return nil
	}

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTTL != time.Hour {
		t.Errorf("expected ttl=1h, got %v", gotTTL)
	}
	if !strings.HasPrefix(gotKey, "p:") {
		t.Errorf("expected custom prefix, got %s", gotKey)
	}
}

func TestEmbed_StoreFailureDegrades(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float64{0.7}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		return errors.New("connection refused")
	}

	result, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("cache failures must not fail the request: %v", err)
	}
	if result.Embedding[0] != 0.7 {
		t.Errorf("unexpected vector: %v", result.Embedding)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	// GET → ErrKeyNotFound (cache miss)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	_, err := ce.Embed(ctx, "test text")
	if err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestEmbed_CorruptCacheEntry(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float64{0.3}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}

	result, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Cached || inner.calls != 1 {
		t.Errorf("corrupt entry must fall through to inner embedder")
	}
}

func TestEmbed_CacheCounter(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float64{1}}}
	ce := New(inner, &mockKVStore{}, counter, zap.NewNop())

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected 1 miss, got %f", got)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float64{0.1, -2.5, 1e-9}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("vec[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestEmbed_WithRedisStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	vec := []float64{0.25, 0.5}
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "GET" && strings.HasPrefix(cmd[1], "flatrag:emb:")
		})).
		Return(mock.Result(mock.RedisBlobString(string(vectorToCacheBytes(vec)))))

	inner := &mockEmbedder{}
	ce := New(inner, redis.NewStoreForTest(c), nil, zap.NewNop())

	result, err := ce.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Cached || result.Embedding[1] != 0.5 {
		t.Errorf("unexpected result: %+v", result)
	}
}
