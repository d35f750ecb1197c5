package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Environment variables recognized on top of the YAML file.
const (
	EnvDataDir            = "RAG_DATA_DIR"
	EnvEmbeddingsDir      = "RAG_EMBEDDINGS_DIR"
	EnvEmbeddingURL       = "RAG_EMBEDDING_URL"
	EnvEmbeddingProvider  = "RAG_EMBEDDING_PROVIDER"
	EnvEmbeddingModel     = "RAG_EMBEDDING_MODEL"
	EnvCompletionURL      = "RAG_COMPLETION_URL"
	EnvCompletionProvider = "RAG_COMPLETION_PROVIDER"
	EnvAPIKey             = "RAG_API_KEY"
	EnvModel              = "RAG_MODEL"
	EnvDebug              = "RAG_DEBUG"
	EnvChunkSize          = "RAG_CHUNK_SIZE"
	EnvMaxResults         = "RAG_MAX_RESULTS"
	EnvMinSimilarity      = "RAG_MIN_SIMILARITY"
	EnvMaxDistance        = "RAG_MAX_DISTANCE"
	EnvTemperature        = "RAG_TEMPERATURE"
	EnvMaxTokens          = "RAG_MAX_TOKENS"
	EnvTimeoutSec         = "RAG_TIMEOUT_SEC"
)

type lookupFunc func(key string) (string, bool)

// applyEnv overlays RAG_* variables onto cfg. Empty values are ignored.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvDataDir, &cfg.Storage.DataDir)
	str(EnvEmbeddingsDir, &cfg.Storage.EmbeddingsDir)
	str(EnvEmbeddingURL, &cfg.Embedding.URL)
	str(EnvEmbeddingProvider, &cfg.Embedding.Provider)
	str(EnvEmbeddingModel, &cfg.Embedding.Model)
	str(EnvCompletionURL, &cfg.Completion.URL)
	str(EnvCompletionProvider, &cfg.Completion.Provider)
	str(EnvModel, &cfg.Completion.Model)

	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		cfg.Embedding.APIKey = v
		cfg.Completion.APIKey = v
	}

	var errs []error
	parse := func(key string, set func(string) error) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
		}
	}

	parse(EnvDebug, func(v string) (err error) {
		cfg.Debug, err = cast.ToBoolE(v)
		return err
	})
	parse(EnvChunkSize, func(v string) (err error) {
		cfg.Retrieval.ChunkSize, err = cast.ToIntE(v)
		return err
	})
	parse(EnvMaxResults, func(v string) (err error) {
		cfg.Retrieval.MaxResults, err = cast.ToIntE(v)
		return err
	})
	parse(EnvMinSimilarity, func(v string) (err error) {
		cfg.Retrieval.MinSimilarity, err = cast.ToFloat64E(v)
		return err
	})
	parse(EnvMaxDistance, func(v string) (err error) {
		cfg.Retrieval.MaxDistance, err = cast.ToFloat64E(v)
		return err
	})
	parse(EnvTemperature, func(v string) (err error) {
		cfg.Completion.Temperature, err = cast.ToFloat64E(v)
		return err
	})
	parse(EnvMaxTokens, func(v string) (err error) {
		cfg.Completion.MaxTokens, err = cast.ToIntE(v)
		return err
	})
	parse(EnvTimeoutSec, func(v string) error {
		sec, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		cfg.Embedding.TimeoutSec = sec
		cfg.Completion.TimeoutSec = sec
		return nil
	})

	return errors.Join(errs...)
}
