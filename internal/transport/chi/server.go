package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/domain"
	dombatch "github.com/kailas-cloud/flatrag/internal/domain/batch"
	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/logger"
	"github.com/kailas-cloud/flatrag/internal/metrics"
	healthuc "github.com/kailas-cloud/flatrag/internal/usecase/health"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the flatrag HTTP API.
type Server struct {
	engine        Engine
	logger        *zap.Logger
	ingestRoot    string
	errorHandlers []errorHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithIngestRoot confines document ingestion to files under dir.
// Relative request paths resolve against dir.
func WithIngestRoot(dir string) ServerOption {
	return func(s *Server) { s.ingestRoot = dir }
}

// NewServer creates an HTTP API server.
func NewServer(engine Engine, logger *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	// Order matters: timeouts are checked before provider failures.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeUpstreamTimeout),
		sentinelHandler(domain.ErrPathNotAllowed, http.StatusForbidden, CodePathNotAllowed),
		sentinelHandler(domain.ErrDocumentNameConflict, http.StatusConflict, CodeDocumentNameConflict),
		sentinelHandler(domain.ErrInvalidTopic, http.StatusBadRequest, CodeInvalidTopic),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrUnsupportedDocument, http.StatusUnsupportedMediaType, CodeUnsupportedDocument),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusUnprocessableEntity, CodeDimensionMismatch),
		sentinelHandler(domain.ErrChunkStoreCorrupt, http.StatusInternalServerError, CodeChunkStoreCorrupt),
		sentinelHandler(domain.ErrEmbeddingNotConfigured,
			http.StatusServiceUnavailable, CodeEmbeddingNotConfigured),
		sentinelHandler(domain.ErrEmbeddingRequestFailed, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrMalformedEmbeddingResponse, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrCompletionRequestFailed, http.StatusBadGateway, CodeCompletionProviderError),
		sentinelHandler(domain.ErrMalformedCompletionResponse,
			http.StatusBadGateway, CodeCompletionProviderError),
	}
	return s
}

// Handler builds the router with the standard middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/topics", s.ListTopics)
	r.Route("/topics/{topic}", func(r chi.Router) {
		r.Post("/documents", s.IngestDocuments)
		r.Post("/search", s.Search)
		r.Post("/query", s.Query)
	})
	return r
}

// IngestDocuments handles POST /topics/{topic}/documents.
func (s *Server) IngestDocuments(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	paths := req.Paths
	if req.Path != "" {
		paths = append([]string{req.Path}, paths...)
	}
	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "path or paths is required")
		return
	}

	resolved := make([]string, len(paths))
	for i, p := range paths {
		rp, err := s.confine(p)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		resolved[i] = rp
	}

	topic := chi.URLParam(r, "topic")
	if len(paths) == 1 {
		n, err := s.engine.Ingest(r.Context(), topic, resolved[0])
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, IngestResponse{Items: []IngestItem{
			{Path: paths[0], Status: string(dombatch.StatusOK), Chunks: n},
		}})
		return
	}

	results, err := s.engine.IngestAll(r.Context(), topic, resolved)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]IngestItem, len(results))
	status := http.StatusOK
	for i, res := range results {
		items[i] = batchResultToItem(res)
		// Echo the path as the client sent it.
		if i < len(paths) {
			items[i].Path = paths[i]
		}
		if res.Status() == dombatch.StatusError {
			status = http.StatusMultiStatus
		}
	}
	writeJSON(w, status, IngestResponse{Items: items})
}

// confine resolves path against the ingest root and rejects paths that leave it,
// including through symlinks. Without a root, path is returned unchanged.
func (s *Server) confine(path string) (string, error) {
	if s.ingestRoot == "" {
		return path, nil
	}
	root, err := filepath.Abs(s.ingestRoot)
	if err != nil {
		return "", fmt.Errorf("resolve ingest root: %w", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if !within(root, path) {
		return "", fmt.Errorf("%w: %s", domain.ErrPathNotAllowed, path)
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		// Missing files are reported by the reader.
		return path, nil //nolint:nilerr // not a confinement failure
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}
	if !within(realRoot, target) {
		return "", fmt.Errorf("%w: %s", domain.ErrPathNotAllowed, path)
	}
	return path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Search handles POST /topics/{topic}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req, filters, warnings, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	chunks, err := s.engine.Search(r.Context(), chi.URLParam(r, "topic"), req.Question, filters)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Chunks: chunks, Warnings: warnings})
}

// Query handles POST /topics/{topic}/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	req, filters, warnings, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	topic := chi.URLParam(r, "topic")

	if req.Raw {
		res, err := s.engine.QueryRaw(r.Context(), topic, req.Question, filters)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RawQueryResponse{RawResult: res, Warnings: warnings})
		return
	}

	answer, err := s.engine.Query(r.Context(), topic, req.Question, filters)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Answer: answer, Warnings: warnings})
}

// ListTopics handles GET /topics.
func (s *Server) ListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.engine.Topics(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TopicsResponse{Topics: topics})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Health(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodeSearch reads a SearchRequest and parses its filters.
// Malformed filter expressions are dropped and reported as warnings.
func (s *Server) decodeSearch(
	w http.ResponseWriter, r *http.Request,
) (SearchRequest, filter.Set, []string, bool) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return req, nil, nil, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "question is required")
		return req, nil, nil, false
	}

	filters, diags := filter.ParseAll(req.Filters)
	var warnings []string
	for _, d := range diags {
		warnings = append(warnings, d.Error())
	}
	if len(warnings) > 0 {
		logger.FromContext(r.Context()).Warn("Dropped malformed filters", zap.Strings("warnings", warnings))
	}
	return req, filters, warnings, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrTimeout,
		domain.ErrPathNotAllowed,
		domain.ErrDocumentNameConflict,
		domain.ErrInvalidTopic,
		domain.ErrDocumentNotFound,
		domain.ErrUnsupportedDocument,
		domain.ErrDimensionMismatch,
		domain.ErrChunkStoreCorrupt,
		domain.ErrEmbeddingNotConfigured,
		domain.ErrEmbeddingRequestFailed,
		domain.ErrMalformedEmbeddingResponse,
		domain.ErrCompletionRequestFailed,
		domain.ErrMalformedCompletionResponse,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func batchResultToItem(r dombatch.Result) IngestItem {
	item := IngestItem{
		Path:   r.Path(),
		Status: string(r.Status()),
		Chunks: r.Chunks(),
	}
	if r.Err() != nil {
		item.Error = &ErrorBody{
			Code:    errorCode(r.Err()),
			Message: safeDomainMessage(r.Err()),
		}
	}
	return item
}

// errorCode maps an error to its API code using the same precedence as handleDomainError.
func errorCode(err error) ErrorCode {
	codes := []struct {
		sentinel error
		code     ErrorCode
	}{
		{domain.ErrTimeout, CodeUpstreamTimeout},
		{domain.ErrDocumentNameConflict, CodeDocumentNameConflict},
		{domain.ErrDocumentNotFound, CodeDocumentNotFound},
		{domain.ErrUnsupportedDocument, CodeUnsupportedDocument},
		{domain.ErrEmbeddingNotConfigured, CodeEmbeddingNotConfigured},
		{domain.ErrEmbeddingRequestFailed, CodeEmbeddingProviderError},
		{domain.ErrMalformedEmbeddingResponse, CodeEmbeddingProviderError},
	}
	for _, c := range codes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeInternalError
}
