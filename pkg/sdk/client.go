package flatrag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/config"
	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/engine"
)

// Client is the entry point for ingesting documents and querying topics.
// It is safe for concurrent use.
type Client struct {
	engine *engine.Engine
	logger *zap.Logger
	obs    *observer
}

// New creates a Client. Without options it reads and writes ./embeddings
// and needs an embedding endpoint before the first Ingest or Search.
func New(opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}

	cfg, err := baseConfig(cc.configFile)
	if err != nil {
		return nil, fmt.Errorf("flatrag: %w", err)
	}
	for _, fn := range cc.overrides {
		fn(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("flatrag: invalid config: %w", err)
	}

	logger := cc.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	obs, err := newObserver(cc.logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	var engineOpts []engine.Option
	if cc.embedder != nil {
		engineOpts = append(engineOpts, engine.WithEmbedder(embedderAdapter{inner: cc.embedder}))
	}

	return &Client{
		engine: engine.New(cfg, logger, engineOpts...),
		logger: logger,
		obs:    obs,
	}, nil
}

// baseConfig resolves defaults < YAML file (when given) < RAG_* environment.
// Options are applied on top by the caller.
func baseConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.FromEnv()
}

// Close releases the embedding cache connection, if any.
func (c *Client) Close() {
	c.engine.Close()
}

// Ingest embeds the document at path and replaces its chunks under topic.
// It returns the number of chunks written.
func (c *Client) Ingest(ctx context.Context, topic, path string) (n int, err error) {
	sp := c.obs.start("ingest", topic)
	defer sp.end(&err)
	return c.engine.Ingest(ctx, topic, path)
}

// IngestAll ingests documents concurrently. A failing document does not
// stop the others; its error is reported in the matching result.
func (c *Client) IngestAll(ctx context.Context, topic string, paths []string) (res []IngestResult, err error) {
	sp := c.obs.start("ingest_all", topic)
	defer sp.end(&err)
	results, err := c.engine.IngestAll(ctx, topic, paths)
	if err != nil {
		return nil, err
	}
	return ingestResultsFromBatch(results), nil
}

// Watch keeps topic in sync with the documents in dir until ctx is done.
func (c *Client) Watch(ctx context.Context, topic, dir string) error {
	return c.engine.Watch(ctx, topic, dir)
}

// Search returns the chunks of topic closest to question, best first.
// filters are key<op>value expressions; malformed ones are skipped.
func (c *Client) Search(ctx context.Context, topic, question string, filters ...string) (out []Chunk, err error) {
	sp := c.obs.start("search", topic)
	defer sp.end(&err)
	chunks, err := c.engine.Search(ctx, topic, question, c.parseFilters(filters))
	if err != nil {
		return nil, err
	}
	sp.retained(len(chunks))
	return chunksFromScored(chunks), nil
}

// Query answers question from topic. Without a completion endpoint the
// answer is the prompt built from the matching chunks.
func (c *Client) Query(ctx context.Context, topic, question string, filters ...string) (answer string, err error) {
	sp := c.obs.start("query", topic)
	defer sp.end(&err)
	raw, err := c.engine.QueryRaw(ctx, topic, question, c.parseFilters(filters))
	if err != nil {
		return "", err
	}
	sp.retained(len(raw.Chunks))
	switch {
	case len(raw.Chunks) == 0:
		return NoRelevantChunks, nil
	case raw.Response != nil:
		return *raw.Response, nil
	}
	return raw.Prompt, nil
}

// QueryRaw answers question from topic and exposes the ranked chunks and the prompt.
func (c *Client) QueryRaw(ctx context.Context, topic, question string, filters ...string) (out RawAnswer, err error) {
	sp := c.obs.start("query_raw", topic)
	defer sp.end(&err)
	raw, err := c.engine.QueryRaw(ctx, topic, question, c.parseFilters(filters))
	if err != nil {
		return RawAnswer{}, err
	}
	sp.retained(len(raw.Chunks))
	return RawAnswer{
		Chunks:   chunksFromScored(raw.Chunks),
		Prompt:   raw.Prompt,
		Response: raw.Response,
	}, nil
}

// Topics lists the stored topics in name order.
func (c *Client) Topics(ctx context.Context) ([]string, error) {
	return c.engine.Topics(ctx)
}

// Health checks the chunk store, the cache and the embedding provider.
func (c *Client) Health(ctx context.Context) HealthStatus {
	return healthFromReport(c.engine.Health(ctx))
}

// SetRetrieval changes the ranking knobs for subsequent calls.
func (c *Client) SetRetrieval(maxResults int, minSimilarity, maxDistance float64) error {
	_, err := c.engine.UpdateConfig(func(cfg config.Config) config.Config {
		cfg.Retrieval.MaxResults = maxResults
		cfg.Retrieval.MinSimilarity = minSimilarity
		cfg.Retrieval.MaxDistance = maxDistance
		return cfg
	})
	if err != nil {
		return fmt.Errorf("flatrag: %w", err)
	}
	return nil
}

func (c *Client) parseFilters(exprs []string) filter.Set {
	set, diags := filter.ParseAll(exprs)
	for _, d := range diags {
		c.logger.Warn("skipping filter", zap.Error(d))
	}
	return set
}
