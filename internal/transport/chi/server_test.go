package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/domain"
	dombatch "github.com/kailas-cloud/flatrag/internal/domain/batch"
	"github.com/kailas-cloud/flatrag/internal/domain/chunk"
	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	"github.com/kailas-cloud/flatrag/internal/metrics"
	healthuc "github.com/kailas-cloud/flatrag/internal/usecase/health"
	queryuc "github.com/kailas-cloud/flatrag/internal/usecase/query"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockEngine struct {
	err         error
	chunks      []result.ScoredChunk
	answer      string
	raw         queryuc.RawResult
	results     []dombatch.Result
	topics      []string
	report      healthuc.Report
	gotTopic    string
	gotQuestion string
	gotFilters  filter.Set
	gotPaths    []string
	panicOn     bool
}

func (m *mockEngine) Ingest(_ context.Context, topic, path string) (int, error) {
	m.gotTopic, m.gotPaths = topic, []string{path}
	if m.err != nil {
		return 0, m.err
	}
	return 2, nil
}

func (m *mockEngine) IngestAll(_ context.Context, topic string, paths []string) ([]dombatch.Result, error) {
	m.gotTopic, m.gotPaths = topic, paths
	return m.results, m.err
}

func (m *mockEngine) Search(_ context.Context, topic, question string, filters filter.Set) ([]result.ScoredChunk, error) {
	if m.panicOn {
		panic("boom")
	}
	m.gotTopic, m.gotQuestion, m.gotFilters = topic, question, filters
	return m.chunks, m.err
}

func (m *mockEngine) Query(_ context.Context, topic, question string, filters filter.Set) (string, error) {
	m.gotTopic, m.gotQuestion, m.gotFilters = topic, question, filters
	return m.answer, m.err
}

func (m *mockEngine) QueryRaw(
	_ context.Context, topic, question string, filters filter.Set,
) (queryuc.RawResult, error) {
	m.gotTopic, m.gotQuestion, m.gotFilters = topic, question, filters
	return m.raw, m.err
}

func (m *mockEngine) Topics(_ context.Context) ([]string, error) { return m.topics, m.err }

func (m *mockEngine) Health(_ context.Context) healthuc.Report { return m.report }

func do(
	t *testing.T, eng *mockEngine, method, path, body string, opts ...ServerOption,
) *httptest.ResponseRecorder {
	t.Helper()
	h := NewServer(eng, zap.NewNop(), opts...).Handler()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// --- Tests ---

func TestSearch_ParsesFiltersAndWarns(t *testing.T) {
	eng := &mockEngine{chunks: []result.ScoredChunk{
		{Chunk: chunk.Chunk{Text: "cats purr", Meta: map[string]any{"category": "pets"}}, Score: 0.9, Distance: 0.2},
	}}
	rec := do(t, eng, http.MethodPost, "/topics/animals/search",
		`{"question":"cats?","filters":["category=pets","broken"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if eng.gotTopic != "animals" || eng.gotQuestion != "cats?" {
		t.Errorf("unexpected call: topic=%q question=%q", eng.gotTopic, eng.gotQuestion)
	}
	if len(eng.gotFilters) != 1 || eng.gotFilters[0].Key() != "category" {
		t.Errorf("expected one parsed filter, got %v", eng.gotFilters)
	}

	resp := decodeBody[map[string]any](t, rec)
	chunks, _ := resp["chunks"].([]any)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %v", resp["chunks"])
	}
	first, _ := chunks[0].(map[string]any)
	for _, k := range []string{"text", "embedding", "meta", "score", "distance"} {
		if _, ok := first[k]; !ok {
			t.Errorf("chunk is missing %q", k)
		}
	}
	warnings, _ := resp["warnings"].([]any)
	if len(warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", resp["warnings"])
	}
}

func TestSearch_Validation(t *testing.T) {
	eng := &mockEngine{}
	rec := do(t, eng, http.MethodPost, "/topics/animals/search", `{"question":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty question, got %d", rec.Code)
	}

	rec = do(t, eng, http.MethodPost, "/topics/animals/search", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid body, got %d", rec.Code)
	}
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	eng := &mockEngine{chunks: []result.ScoredChunk{}}
	rec := do(t, eng, http.MethodPost, "/topics/animals/search", `{"question":"q"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"chunks":[]`) {
		t.Errorf("expected empty chunk list, got %s", rec.Body.String())
	}
}

func TestQuery_StringAndRaw(t *testing.T) {
	eng := &mockEngine{answer: queryuc.NoRelevantChunks}
	rec := do(t, eng, http.MethodPost, "/topics/animals/query", `{"question":"q"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeBody[QueryResponse](t, rec); resp.Answer != queryuc.NoRelevantChunks {
		t.Errorf("unexpected answer %q", resp.Answer)
	}

	answer := "cats purr"
	eng = &mockEngine{raw: queryuc.RawResult{
		Chunks:   []result.ScoredChunk{{Chunk: chunk.Chunk{Text: "cats purr"}}},
		Response: &answer,
		Prompt:   "prompt",
	}}
	rec = do(t, eng, http.MethodPost, "/topics/animals/query", `{"question":"q","raw":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody[map[string]any](t, rec)
	if resp["response"] != "cats purr" || resp["prompt"] != "prompt" {
		t.Errorf("unexpected raw response %v", resp)
	}
}

func TestIngest_Single(t *testing.T) {
	eng := &mockEngine{}
	rec := do(t, eng, http.MethodPost, "/topics/animals/documents", `{"path":"docs/pets.md"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[IngestResponse](t, rec)
	if len(resp.Items) != 1 || resp.Items[0].Chunks != 2 || resp.Items[0].Status != "ok" {
		t.Errorf("unexpected response %+v", resp)
	}
	if eng.gotPaths[0] != "docs/pets.md" {
		t.Errorf("unexpected path %v", eng.gotPaths)
	}
}

func TestIngest_BatchPartialFailure(t *testing.T) {
	eng := &mockEngine{results: []dombatch.Result{
		dombatch.NewOK("a.md", 3),
		dombatch.NewError("b.md", fmt.Errorf("read document: %w", domain.ErrDocumentNotFound)),
	}}
	rec := do(t, eng, http.MethodPost, "/topics/animals/documents", `{"paths":["a.md","b.md"]}`)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", rec.Code)
	}
	resp := decodeBody[IngestResponse](t, rec)
	if resp.Items[1].Error == nil || resp.Items[1].Error.Code != CodeDocumentNotFound {
		t.Errorf("expected document_not_found item error, got %+v", resp.Items[1])
	}
}

func TestIngest_ConfinedToIngestRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.md")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"parent escape", `{"path":"../secret.md"}`, http.StatusForbidden},
		{"absolute outside", fmt.Sprintf(`{"path":%q}`, outside), http.StatusForbidden},
		{"batch with one outside", fmt.Sprintf(`{"paths":["docs/a.md",%q]}`, outside), http.StatusForbidden},
		{"relative inside", `{"path":"docs/pets.md"}`, http.StatusOK},
		{"absolute inside", fmt.Sprintf(`{"path":%q}`, filepath.Join(root, "pets.md")), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &mockEngine{}
			rec := do(t, eng, http.MethodPost, "/topics/animals/documents", tt.body, WithIngestRoot(root))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusForbidden {
				return
			}
			if eng.gotPaths != nil {
				t.Errorf("engine must not be called, got paths %v", eng.gotPaths)
			}
			resp := decodeBody[ErrorResponse](t, rec)
			if resp.Code != CodePathNotAllowed {
				t.Errorf("expected code %q, got %q", CodePathNotAllowed, resp.Code)
			}
			if strings.Contains(resp.Message, "secret") {
				t.Errorf("message leaks the path: %q", resp.Message)
			}
		})
	}
}

func TestIngest_RelativePathResolvesAgainstIngestRoot(t *testing.T) {
	root := t.TempDir()
	eng := &mockEngine{}
	rec := do(t, eng, http.MethodPost, "/topics/animals/documents", `{"path":"docs/pets.md"}`, WithIngestRoot(root))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if want := filepath.Join(root, "docs", "pets.md"); eng.gotPaths[0] != want {
		t.Errorf("engine got %q, want %q", eng.gotPaths[0], want)
	}
	resp := decodeBody[IngestResponse](t, rec)
	if resp.Items[0].Path != "docs/pets.md" {
		t.Errorf("response should echo the request path, got %q", resp.Items[0].Path)
	}
}

func TestIngest_SymlinkOutOfIngestRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.md")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link.md")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	eng := &mockEngine{}
	rec := do(t, eng, http.MethodPost, "/topics/animals/documents", `{"path":"link.md"}`, WithIngestRoot(root))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if eng.gotPaths != nil {
		t.Errorf("engine must not be called, got paths %v", eng.gotPaths)
	}
}

func TestIngest_BatchNameConflictItem(t *testing.T) {
	eng := &mockEngine{results: []dombatch.Result{
		dombatch.NewOK("notes/a.md", 1),
		dombatch.NewError("docs/a.md", fmt.Errorf("%w: notes/a.md", domain.ErrDocumentNameConflict)),
	}}
	rec := do(t, eng, http.MethodPost, "/topics/animals/documents", `{"paths":["notes/a.md","docs/a.md"]}`)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", rec.Code)
	}
	resp := decodeBody[IngestResponse](t, rec)
	if resp.Items[1].Error == nil || resp.Items[1].Error.Code != CodeDocumentNameConflict {
		t.Errorf("expected document_name_conflict item error, got %+v", resp.Items[1])
	}
}

func TestIngest_MissingPath(t *testing.T) {
	rec := do(t, &mockEngine{}, http.MethodPost, "/topics/animals/documents", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"invalid topic", domain.ErrInvalidTopic, http.StatusBadRequest, CodeInvalidTopic},
		{"not found", domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound},
		{"unsupported", domain.ErrUnsupportedDocument, http.StatusUnsupportedMediaType, CodeUnsupportedDocument},
		{"dimension", &domain.DimensionMismatchError{Left: 3, Right: 2},
			http.StatusUnprocessableEntity, CodeDimensionMismatch},
		{"corrupt", &domain.CorruptRecordError{Path: "x", Line: 1, Err: errors.New("bad")},
			http.StatusInternalServerError, CodeChunkStoreCorrupt},
		{"embedding", domain.NewProviderError(domain.ErrEmbeddingRequestFailed, 500, "secret body"),
			http.StatusBadGateway, CodeEmbeddingProviderError},
		{"completion", domain.NewProviderError(domain.ErrCompletionRequestFailed, 500, ""),
			http.StatusBadGateway, CodeCompletionProviderError},
		{"timeout", fmt.Errorf("%w: %w", domain.ErrTimeout, context.DeadlineExceeded),
			http.StatusGatewayTimeout, CodeUpstreamTimeout},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, &mockEngine{err: tt.err}, http.MethodPost, "/topics/t/search", `{"question":"q"}`)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			resp := decodeBody[ErrorResponse](t, rec)
			if resp.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, resp.Code)
			}
			if strings.Contains(resp.Message, "secret body") || strings.Contains(resp.Message, "disk on fire") {
				t.Errorf("message leaks internals: %q", resp.Message)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	rec := do(t, &mockEngine{topics: []string{"animals", "zoo"}}, http.MethodGet, "/topics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeBody[TopicsResponse](t, rec); len(resp.Topics) != 2 {
		t.Errorf("unexpected topics %v", resp.Topics)
	}
}

func TestHealth(t *testing.T) {
	eng := &mockEngine{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{healthuc.ComponentStore: healthuc.CheckOK},
	}}
	rec := do(t, eng, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	eng.report = healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{healthuc.ComponentEmbedding: healthuc.CheckError},
	}
	rec = do(t, eng, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if resp := decodeBody[HealthResponse](t, rec); resp.Checks["embedding"] != "error" {
		t.Errorf("unexpected checks %v", resp.Checks)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_ = do(t, &mockEngine{}, http.MethodGet, "/topics", "")

	rec := do(t, &mockEngine{}, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "flatrag_http_requests_total") {
		t.Error("expected request counter in exposition")
	}
}

func TestPanicRecovery(t *testing.T) {
	rec := do(t, &mockEngine{panicOn: true}, http.MethodPost, "/topics/t/search", `{"question":"q"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Code != CodeInternalError {
		t.Errorf("expected internal_error, got %q", resp.Code)
	}
}
