package flatrag

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func keywordEmbedder(calls *atomic.Int32) EmbedderFunc {
	return func(_ context.Context, text string) ([]float64, error) {
		calls.Add(1)
		text = strings.ToLower(text)
		switch {
		case strings.Contains(text, "cat"):
			return []float64{1, 0, 0}, nil
		case strings.Contains(text, "dog"):
			return []float64{0, 1, 0}, nil
		}
		return []float64{0, 0, 1}, nil
	}
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const petsDoc = `---
category: pets
---
cats purr
dogs bark
`

func newTestClient(t *testing.T, calls *atomic.Int32, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithDataDir(t.TempDir()),
		WithChunkSize(1),
		WithEmbedder(keywordEmbedder(calls)),
	}
	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// --- Tests ---

func TestClient_IngestAndSearch(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)
	ctx := context.Background()

	n, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunks, err := c.Search(ctx, "animals", "tell me about cats")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "cats purr", chunks[0].Text)
	assert.InDelta(t, 1.0, chunks[0].Score, 1e-9)
	assert.Equal(t, "pets", chunks[0].Meta["category"])
}

func TestClient_SearchFilters(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)
	ctx := context.Background()

	_, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)

	chunks, err := c.Search(ctx, "animals", "cats", "category=wildlife")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Malformed expressions are skipped, the valid one still applies.
	chunks, err = c.Search(ctx, "animals", "cats", "nonsense", "category=pets")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestClient_QueryWithoutCompletionReturnsPrompt(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)
	ctx := context.Background()

	_, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)

	answer, err := c.Query(ctx, "animals", "what do cats do?")
	require.NoError(t, err)
	assert.Contains(t, answer, "cats purr")
	assert.True(t, strings.HasSuffix(answer, "Question: what do cats do?"))

	raw, err := c.QueryRaw(ctx, "animals", "what do cats do?")
	require.NoError(t, err)
	assert.Nil(t, raw.Response)
	assert.Equal(t, answer, raw.Prompt)
	assert.NotEmpty(t, raw.Chunks)
}

func TestClient_QueryEmptyTopic(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)

	answer, err := c.Query(context.Background(), "nothing", "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantChunks, answer)
	assert.Zero(t, calls.Load())
}

func TestClient_IngestAll(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)

	good := writeDoc(t, "pets.md", petsDoc)
	missing := filepath.Join(t.TempDir(), "missing.md")

	results, err := c.IngestAll(context.Background(), "animals", []string{good, missing})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, good, results[0].Path)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 2, results[0].Chunks)
	assert.ErrorIs(t, results[1].Err, ErrDocumentNotFound)
}

func TestClient_InvalidTopic(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)

	_, err := c.Ingest(context.Background(), "../escape", writeDoc(t, "pets.md", petsDoc))
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestClient_EmbedderError(t *testing.T) {
	boom := errors.New("boom")
	c, err := New(
		WithDataDir(t.TempDir()),
		WithEmbedder(EmbedderFunc(func(context.Context, string) ([]float64, error) { return nil, boom })),
	)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Ingest(context.Background(), "animals", writeDoc(t, "pets.md", petsDoc))
	assert.ErrorIs(t, err, boom)
}

func TestClient_TopicsAndHealth(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)
	ctx := context.Background()

	_, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)

	topics, err := c.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"animals"}, topics)

	h := c.Health(ctx)
	assert.Equal(t, "ok", h.Checks["store"])
}

func TestClient_SetRetrieval(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)
	ctx := context.Background()

	_, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)

	chunks, err := c.Search(ctx, "animals", "cats")
	require.NoError(t, err)
	assert.Len(t, chunks, 1, "default thresholds cut the orthogonal chunk")

	require.NoError(t, c.SetRetrieval(5, -1, 2))
	chunks, err = c.Search(ctx, "animals", "cats")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	assert.Error(t, c.SetRetrieval(0, 0, 0))
}

func TestClient_RetainedChunksHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	var calls atomic.Int32
	c := newTestClient(t, &calls, WithPrometheus(reg), WithRetrieval(5, -1, 2))
	ctx := context.Background()

	_, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)
	_, err = c.Search(ctx, "animals", "cats")
	require.NoError(t, err)
	_, err = c.Query(ctx, "animals", "cats", "category=wildlife")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	sums := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "flatrag_sdk_retained_chunks" {
			continue
		}
		for _, m := range mf.GetMetric() {
			sums[m.GetLabel()[0].GetValue()] = m.GetHistogram().GetSampleSum()
		}
	}
	assert.Equal(t, map[string]float64{"search": 2, "query": 0}, sums)
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(WithRetrieval(5, 2, 0))
	assert.Error(t, err)

	_, err = New(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestNew_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flatrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  max_results: 5\n  min_similarity: -1\n  max_distance: 2\n"), 0o644))

	var calls atomic.Int32
	c := newTestClient(t, &calls, WithConfigFile(path))
	ctx := context.Background()

	_, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)
	chunks, err := c.Search(ctx, "animals", "cats")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestNew_EnvironmentLayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":"  answer  "}`))
	}))
	defer srv.Close()

	t.Setenv("RAG_MAX_RESULTS", "1")
	t.Setenv("RAG_MIN_SIMILARITY", "-1")
	t.Setenv("RAG_MAX_DISTANCE", "2")
	t.Setenv("RAG_COMPLETION_URL", srv.URL)

	var calls atomic.Int32
	c := newTestClient(t, &calls)
	ctx := context.Background()

	_, err := c.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)

	chunks, err := c.Search(ctx, "animals", "cats")
	require.NoError(t, err)
	assert.Len(t, chunks, 1, "RAG_MAX_RESULTS caps the result")

	answer, err := c.Query(ctx, "animals", "what do cats do?")
	require.NoError(t, err)
	assert.Equal(t, "answer", answer, "RAG_COMPLETION_URL enables completion")

	// Explicit options win over the environment.
	wide := newTestClient(t, &calls, WithRetrieval(5, -1, 2))
	_, err = wide.Ingest(ctx, "animals", writeDoc(t, "pets.md", petsDoc))
	require.NoError(t, err)
	chunks, err = wide.Search(ctx, "animals", "cats")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestNew_InvalidEnvironment(t *testing.T) {
	t.Setenv("RAG_MAX_RESULTS", "many")
	_, err := New(WithDataDir(t.TempDir()))
	assert.Error(t, err)
}

func TestClient_Prometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	var calls atomic.Int32
	c := newTestClient(t, &calls, WithPrometheus(reg))

	_, err := c.Search(context.Background(), "animals", "cats")
	require.NoError(t, err)
	_, err = c.Ingest(context.Background(), "../bad", "x.md")
	require.Error(t, err)

	series, err := testutil.GatherAndCount(reg, "flatrag_sdk_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, series)

	// Only the successful search records a retained-chunk sample.
	series, err = testutil.GatherAndCount(reg, "flatrag_sdk_retained_chunks")
	require.NoError(t, err)
	assert.Equal(t, 1, series)

	ops, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range ops {
		if mf.GetName() == "flatrag_sdk_operations_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, found)

	// A second client on the same registry reuses the collectors.
	_, err = New(WithPrometheus(reg))
	assert.NoError(t, err)
}
