package flatrag

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	configFile string
	overrides  []func(*config.Config)

	embedder Embedder

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

func (c *clientConfig) set(fn func(*config.Config)) {
	c.overrides = append(c.overrides, fn)
}

// WithConfigFile loads a YAML configuration file as the base layer.
// Environment variables and the other options are applied on top.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.configFile = path
	})
}

// WithDataDir sets the directory holding the embeddings store.
func WithDataDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) { cfg.Storage.DataDir = dir })
	})
}

// WithEmbeddingEndpoint uses an OpenAI-compatible embeddings URL.
func WithEmbeddingEndpoint(url, apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Embedding.Provider = config.EmbeddingProviderHTTP
			cfg.Embedding.URL = url
			cfg.Embedding.APIKey = apiKey
		})
	})
}

// WithOpenAIEmbeddings uses the OpenAI embeddings API with the given model.
// An empty baseURL targets api.openai.com.
func WithOpenAIEmbeddings(apiKey, model, baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Embedding.Provider = config.EmbeddingProviderOpenAI
			cfg.Embedding.APIKey = apiKey
			cfg.Embedding.Model = model
			cfg.Embedding.URL = baseURL
		})
	})
}

// WithEmbedder sets a custom text embedding provider.
// It replaces the configured endpoint; the embedding cache still applies.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithEmbeddingCache caches embeddings in Valkey or Redis at addr.
// ttlSec of zero keeps entries forever.
func WithEmbeddingCache(addr, password string, ttlSec int) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Embedding.Cache.Enabled = true
			cfg.Embedding.Cache.Addrs = []string{addr}
			cfg.Embedding.Cache.Password = password
			cfg.Embedding.Cache.TTLSec = ttlSec
		})
	})
}

// WithCompletionEndpoint sends query prompts to a completion URL.
// Without it Query returns the prompt itself.
func WithCompletionEndpoint(url, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Completion.Provider = config.CompletionProviderAuto
			cfg.Completion.URL = url
			cfg.Completion.APIKey = apiKey
			if model != "" {
				cfg.Completion.Model = model
			}
		})
	})
}

// WithChunkSize sets the number of lines per chunk.
func WithChunkSize(lines int) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) { cfg.Retrieval.ChunkSize = lines })
	})
}

// WithRetrieval sets the ranking knobs.
// Both thresholds are inclusive. Defaults: maxResults=3, minSimilarity=0.4, maxDistance=0.8.
func WithRetrieval(maxResults int, minSimilarity, maxDistance float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Retrieval.MaxResults = maxResults
			cfg.Retrieval.MinSimilarity = minSimilarity
			cfg.Retrieval.MaxDistance = maxDistance
		})
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
