// Package engine wires configuration snapshots to the ingestion, retrieval and query services.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/config"
	dbredis "github.com/kailas-cloud/flatrag/internal/db/redis"
	"github.com/kailas-cloud/flatrag/internal/domain"
	dombatch "github.com/kailas-cloud/flatrag/internal/domain/batch"
	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/flatrag/internal/logger"
	"github.com/kailas-cloud/flatrag/internal/metrics"
	"github.com/kailas-cloud/flatrag/internal/reader"
	"github.com/kailas-cloud/flatrag/internal/repository/chunkstore"
	"github.com/kailas-cloud/flatrag/internal/repository/embcache"
	"github.com/kailas-cloud/flatrag/internal/transport/completion"
	"github.com/kailas-cloud/flatrag/internal/transport/httpembed"
	openaiEmb "github.com/kailas-cloud/flatrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/flatrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/flatrag/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/flatrag/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/flatrag/internal/usecase/query"
	searchuc "github.com/kailas-cloud/flatrag/internal/usecase/search"
)

// Engine is the public surface of flatrag. Every operation captures one configuration
// snapshot at its start and runs against the services built for that snapshot.
type Engine struct {
	holder *config.Holder
	logger *zap.Logger
	docs   *reader.Universal
	custom domain.Embedder

	mu     sync.Mutex
	snap   *config.Config
	deps   *components
	stores map[string]*chunkstore.Repo
}

// components are the services built for one configuration snapshot.
type components struct {
	cfg    *config.Config
	store  *chunkstore.Repo
	cache  *dbredis.Store // nil when the embedding cache is disabled or unreachable
	search *searchuc.Service
	query  *queryuc.Service
	ingest *ingestuc.Service
	health *healthuc.Service
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder replaces the configured embedding provider with e.
// The cache and instrumentation layers still wrap it.
func WithEmbedder(e domain.Embedder) Option {
	return func(eng *Engine) { eng.custom = e }
}

// ProviderCustom labels embeddings produced by an embedder passed with WithEmbedder.
const ProviderCustom = "custom"

// New creates an engine seeded with cfg.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *Engine {
	metrics.Register()
	e := &Engine{
		holder: config.NewHolder(cfg),
		logger: logger,
		docs:   reader.NewUniversal(),
		stores: make(map[string]*chunkstore.Repo),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() *config.Config {
	return e.holder.Load()
}

// UpdateConfig publishes a new snapshot derived from the current one.
// Calls already in flight keep the snapshot they started with.
func (e *Engine) UpdateConfig(fn func(config.Config) config.Config) (*config.Config, error) {
	cfg, err := e.holder.Update(fn)
	if err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	e.logger.Info("Configuration updated",
		zap.String("store", storeRoot(cfg)),
		zap.Int("max_results", cfg.Retrieval.MaxResults),
		zap.Float64("min_similarity", cfg.Retrieval.MinSimilarity),
		zap.Float64("max_distance", cfg.Retrieval.MaxDistance),
	)
	return cfg, nil
}

// Ingest embeds the document at path and replaces its chunks under topic.
func (e *Engine) Ingest(ctx context.Context, topic, path string) (int, error) {
	if err := chunkstore.ValidateTopic(topic); err != nil {
		return 0, err
	}
	return e.components().ingest.Ingest(e.scope(ctx), topic, path)
}

// IngestAll ingests independent documents concurrently, one result per path.
func (e *Engine) IngestAll(ctx context.Context, topic string, paths []string) ([]dombatch.Result, error) {
	if err := chunkstore.ValidateTopic(topic); err != nil {
		return nil, err
	}
	return e.components().ingest.IngestAll(e.scope(ctx), topic, paths), nil
}

// Watch keeps topic in sync with the documents in dir until ctx is done.
func (e *Engine) Watch(ctx context.Context, topic, dir string) error {
	if err := chunkstore.ValidateTopic(topic); err != nil {
		return err
	}
	return e.components().ingest.Watch(e.scope(ctx), topic, dir, ingestuc.DefaultDebounce)
}

// Search returns the ranked chunks of topic for question.
func (e *Engine) Search(
	ctx context.Context, topic, question string, filters filter.Set,
) ([]result.ScoredChunk, error) {
	return e.components().search.Search(e.scope(ctx), topic, question, filters)
}

// Query answers question from topic as text.
func (e *Engine) Query(ctx context.Context, topic, question string, filters filter.Set) (string, error) {
	return e.components().query.Query(e.scope(ctx), topic, question, filters)
}

// QueryRaw answers question from topic with chunks, prompt and optional response.
func (e *Engine) QueryRaw(
	ctx context.Context, topic, question string, filters filter.Set,
) (queryuc.RawResult, error) {
	return e.components().query.QueryRaw(e.scope(ctx), topic, question, filters)
}

// Topics lists the stored topics.
func (e *Engine) Topics(ctx context.Context) ([]string, error) {
	topics, err := e.components().store.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// Health checks the chunk store, the cache and the embedding provider.
func (e *Engine) Health(ctx context.Context) healthuc.Report {
	return e.components().health.Check(ctx)
}

// scope gives usecase logging the engine logger when the caller's context has none.
func (e *Engine) scope(ctx context.Context) context.Context {
	return logpkg.EnsureLogger(ctx, e.logger)
}

// Close releases the embedding cache connection.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deps != nil && e.deps.cache != nil {
		e.deps.cache.Close()
	}
	e.deps, e.snap = nil, nil
}

// components returns the services for the current snapshot, rebuilding them after an update.
func (e *Engine) components() *components {
	snap := e.holder.Load()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deps != nil && e.snap == snap {
		return e.deps
	}

	old := e.deps
	deps := e.build(snap, old)
	if old != nil && old.cache != nil && old.cache != deps.cache {
		// In-flight calls holding the old cache degrade to direct embedding.
		old.cache.Close()
	}
	e.snap, e.deps = snap, deps
	return deps
}

func (e *Engine) build(cfg *config.Config, prev *components) *components {
	root := storeRoot(cfg)
	store, ok := e.stores[root]
	if !ok {
		// One repo per root keeps file locks shared across snapshots.
		store = chunkstore.New(root)
		e.stores[root] = store
	}

	var cache *dbredis.Store
	if prev != nil && prev.cache != nil && sameCache(prev.cfg, cfg) {
		cache = prev.cache
	} else if cfg.Embedding.Cache.Enabled {
		cache = e.connectCache(cfg.Embedding.Cache)
	}

	embedder := e.buildEmbedder(cfg, cache)

	comp := completion.NewClient(completion.Config{
		URL:         cfg.Completion.URL,
		APIKey:      cfg.Completion.APIKey,
		Provider:    cfg.Completion.Provider,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		Timeout:     time.Duration(cfg.Completion.TimeoutSec) * time.Second,
		Lenient:     cfg.Completion.LenientResponse,
	})

	search := searchuc.New(store, embedder, cfg.Retrieval.Params())

	// Pass nil interface (not typed nil pointer) when the cache is off.
	var cachePinger healthuc.Pinger
	if cache != nil {
		cachePinger = cache
	}

	return &components{
		cfg:    cfg,
		store:  store,
		cache:  cache,
		search: search,
		query:  queryuc.New(search, comp),
		ingest: ingestuc.New(e.docs, store, embedder, cfg.Retrieval.ChunkSize).
			WithConcurrency(cfg.Ingest.Concurrency),
		health: healthuc.New(store, cachePinger, embedder),
	}
}

// buildEmbedder assembles the decorator chain: provider -> Cached -> Instrumented.
func (e *Engine) buildEmbedder(cfg *config.Config, cache *dbredis.Store) *embeddinguc.InstrumentedEmbedder {
	timeout := time.Duration(cfg.Embedding.TimeoutSec) * time.Second

	provider := cfg.Embedding.Provider
	var base domain.Embedder
	switch {
	case e.custom != nil:
		base, provider = e.custom, ProviderCustom
	case provider == config.EmbeddingProviderOpenAI:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.URL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    timeout,
		})
	default:
		base = httpembed.NewEmbedder(httpembed.Config{
			URL:     cfg.Embedding.URL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
			Timeout: timeout,
		})
	}

	embedder := base
	if cache != nil {
		embedder = embcache.New(base, cache, metrics.EmbeddingCacheTotal, e.logger,
			embcache.WithKeyPrefix(cfg.Embedding.Cache.KeyPrefix+cfg.Embedding.Model+":"),
			embcache.WithTTL(time.Duration(cfg.Embedding.Cache.TTLSec)*time.Second),
		)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, provider, cfg.Embedding.Model, e.logger)
}

// connectCache opens the embedding cache. An unreachable cache disables caching.
func (e *Engine) connectCache(cfg config.CacheConfig) *dbredis.Store {
	store, err := dbredis.NewStore(dbredis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err == nil {
		timeout := time.Duration(cfg.ReadyTimeoutSec) * time.Second
		if err = store.WaitForReady(context.Background(), timeout); err != nil {
			store.Close()
		}
	}
	if err != nil {
		e.logger.Warn("Embedding cache unavailable, continuing without it",
			zap.Strings("addrs", cfg.Addrs),
			zap.Error(err),
		)
		return nil
	}
	e.logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Addrs), zap.Int("db", cfg.DB))
	return store
}

func sameCache(a, b *config.Config) bool {
	if !a.Embedding.Cache.Enabled || !b.Embedding.Cache.Enabled {
		return false
	}
	ac, bc := a.Embedding.Cache, b.Embedding.Cache
	if ac.Username != bc.Username || ac.Password != bc.Password || ac.DB != bc.DB ||
		len(ac.Addrs) != len(bc.Addrs) {
		return false
	}
	for i := range ac.Addrs {
		if ac.Addrs[i] != bc.Addrs[i] {
			return false
		}
	}
	return true
}

func storeRoot(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, cfg.Storage.EmbeddingsDir)
}
