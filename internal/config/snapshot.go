package config

import (
	"fmt"
	"sync/atomic"
)

// Overrides are explicit call-site options. They take precedence over the
// environment and the YAML file. Nil fields leave the resolved value untouched.
type Overrides struct {
	DataDir       *string
	EmbeddingsDir *string
	EmbeddingURL  *string
	CompletionURL *string
	APIKey        *string
	Model         *string
	Debug         *bool
	ChunkSize     *int
	MaxResults    *int
	MinSimilarity *float64
	MaxDistance   *float64
	Temperature   *float64
	MaxTokens     *int
}

// Apply returns a copy of cfg with the overrides applied.
func (o Overrides) Apply(cfg Config) Config {
	set(o.DataDir, &cfg.Storage.DataDir)
	set(o.EmbeddingsDir, &cfg.Storage.EmbeddingsDir)
	set(o.EmbeddingURL, &cfg.Embedding.URL)
	set(o.CompletionURL, &cfg.Completion.URL)
	set(o.APIKey, &cfg.Embedding.APIKey)
	set(o.APIKey, &cfg.Completion.APIKey)
	set(o.Model, &cfg.Completion.Model)
	set(o.Debug, &cfg.Debug)
	set(o.ChunkSize, &cfg.Retrieval.ChunkSize)
	set(o.MaxResults, &cfg.Retrieval.MaxResults)
	set(o.MinSimilarity, &cfg.Retrieval.MinSimilarity)
	set(o.MaxDistance, &cfg.Retrieval.MaxDistance)
	set(o.Temperature, &cfg.Completion.Temperature)
	set(o.MaxTokens, &cfg.Completion.MaxTokens)
	return cfg
}

func set[T any](src *T, dst *T) {
	if src != nil {
		*dst = *src
	}
}

// Holder publishes immutable configuration snapshots.
// Readers capture one snapshot per call; updates swap in a new one.
type Holder struct {
	current atomic.Pointer[Config]
}

// NewHolder creates a holder seeded with cfg.
func NewHolder(cfg Config) *Holder {
	h := &Holder{}
	snap := cfg
	h.current.Store(&snap)
	return h
}

// Load returns the current snapshot. Callers must not mutate it.
func (h *Holder) Load() *Config {
	return h.current.Load()
}

// Update derives a new snapshot from the current one and publishes it.
// fn receives a copy and may be retried if a concurrent update wins the race.
func (h *Holder) Update(fn func(Config) Config) (*Config, error) {
	for {
		old := h.current.Load()
		next := fn(clone(*old))
		next.ApplyDefaults()
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config update: %w", err)
		}
		if h.current.CompareAndSwap(old, &next) {
			return &next, nil
		}
	}
}

// clone copies the reference-typed fields so snapshots never share backing arrays.
func clone(cfg Config) Config {
	if cfg.Embedding.Cache.Addrs != nil {
		cfg.Embedding.Cache.Addrs = append([]string(nil), cfg.Embedding.Cache.Addrs...)
	}
	return cfg
}
