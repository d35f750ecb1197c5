package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

// Embedding provider kinds.
const (
	EmbeddingProviderHTTP   = "http"
	EmbeddingProviderOpenAI = "openai"
)

// Completion provider kinds.
const (
	CompletionProviderChat = "chat"
	CompletionProviderFlat = "flat"
	CompletionProviderAuto = "auto"
)

// Config holds the flatrag configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Debug      bool             `yaml:"debug"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig holds chunk store settings.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	EmbeddingsDir string `yaml:"embeddings_dir"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string      `yaml:"provider"` // http, openai (default: http)
	URL        string      `yaml:"url"`
	APIKey     string      `yaml:"api_key"`
	Model      string      `yaml:"model"`
	Dimensions int         `yaml:"dimensions"`
	TimeoutSec int         `yaml:"timeout_sec"`
	Cache      CacheConfig `yaml:"cache"`
}

// CacheConfig holds the opt-in embedding cache settings.
type CacheConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Addrs           []string `yaml:"addrs"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	DB              int      `yaml:"db"`
	KeyPrefix       string   `yaml:"key_prefix"`
	TTLSec          int      `yaml:"ttl_sec"` // 0 = no expiry
	ReadyTimeoutSec int      `yaml:"ready_timeout_sec"`
}

// CompletionConfig holds completion provider settings.
type CompletionConfig struct {
	Provider        string  `yaml:"provider"` // chat, flat, auto (default: flat)
	URL             string  `yaml:"url"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	TimeoutSec      int     `yaml:"timeout_sec"`
	LenientResponse bool    `yaml:"lenient_response"`
}

// RetrievalConfig holds chunking and ranking settings.
type RetrievalConfig struct {
	ChunkSize     int     `yaml:"chunk_size"`
	MaxResults    int     `yaml:"max_results"`
	MinSimilarity float64 `yaml:"min_similarity"`
	MaxDistance   float64 `yaml:"max_distance"`
}

// IngestConfig holds batch ingestion settings.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Params returns the ranking knobs of the snapshot.
func (r RetrievalConfig) Params() domain.RetrievalParams {
	return domain.RetrievalParams{
		MaxResults:    r.MaxResults,
		MinSimilarity: r.MinSimilarity,
		MaxDistance:   r.MaxDistance,
	}
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	cfg := Config{
		Storage: StorageConfig{DataDir: ".", EmbeddingsDir: "embeddings"},
		Embedding: EmbeddingConfig{
			Provider: EmbeddingProviderHTTP,
		},
		Completion: CompletionConfig{
			Provider:    CompletionProviderFlat,
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   512,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:     domain.DefaultChunkSize,
			MaxResults:    domain.DefaultMaxResults,
			MinSimilarity: domain.DefaultMinSimilarity,
			MaxDistance:   domain.DefaultMaxDistance,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Load resolves configuration for an environment name (local, dev, prod).
// config/<env>.yaml is optional; when absent the built-in defaults apply.
func Load(env string) (Config, error) {
	path := findConfigPath(env)
	if !fileExists(path) {
		return resolve(nil)
	}
	return LoadFile(path)
}

// LoadFile resolves configuration from an explicit YAML file, which must exist.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config %s not found: %w", path, err)
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return resolve(data)
}

// FromEnv resolves the built-in defaults overlaid with the environment, without a YAML file.
func FromEnv() (Config, error) {
	return resolve(nil)
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// resolve layers defaults < YAML < environment, then validates.
func resolve(data []byte) (Config, error) {
	cfg := Defaults()

	if len(data) > 0 {
		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "."
	}
	if c.Storage.EmbeddingsDir == "" {
		c.Storage.EmbeddingsDir = "embeddings"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = EmbeddingProviderHTTP
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}
	if c.Embedding.Cache.KeyPrefix == "" {
		c.Embedding.Cache.KeyPrefix = "flatrag:emb:"
	}
	if c.Embedding.Cache.ReadyTimeoutSec <= 0 {
		c.Embedding.Cache.ReadyTimeoutSec = 2
	}
	if c.Completion.Provider == "" {
		c.Completion.Provider = CompletionProviderFlat
	}
	if c.Completion.TimeoutSec <= 0 {
		c.Completion.TimeoutSec = 60
	}
	if c.Completion.MaxTokens <= 0 {
		c.Completion.MaxTokens = 512
	}
	if c.Retrieval.ChunkSize == 0 {
		c.Retrieval.ChunkSize = domain.DefaultChunkSize
	}
	if c.Retrieval.MaxResults == 0 {
		c.Retrieval.MaxResults = domain.DefaultMaxResults
	}
	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.MaxResults <= 0 {
		return fmt.Errorf("retrieval.max_results must be positive, got %d", c.Retrieval.MaxResults)
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be within [-1, 1], got %g", c.Retrieval.MinSimilarity)
	}
	if c.Retrieval.MaxDistance < 0 {
		return fmt.Errorf("retrieval.max_distance must not be negative, got %g", c.Retrieval.MaxDistance)
	}
	switch c.Embedding.Provider {
	case EmbeddingProviderHTTP, EmbeddingProviderOpenAI:
		// ok
	default:
		return fmt.Errorf(
			"embedding.provider must be %q or %q, got %q",
			EmbeddingProviderHTTP, EmbeddingProviderOpenAI, c.Embedding.Provider,
		)
	}
	switch c.Completion.Provider {
	case CompletionProviderChat, CompletionProviderFlat, CompletionProviderAuto:
		// ok
	default:
		return fmt.Errorf(
			"completion.provider must be %q, %q or %q, got %q",
			CompletionProviderChat, CompletionProviderFlat, CompletionProviderAuto, c.Completion.Provider,
		)
	}
	if c.Embedding.Cache.Enabled && len(c.Embedding.Cache.Addrs) == 0 {
		return fmt.Errorf("embedding.cache.addrs is required when the cache is enabled")
	}
	if c.Embedding.Cache.TTLSec < 0 {
		return fmt.Errorf("embedding.cache.ttl_sec must not be negative, got %d", c.Embedding.Cache.TTLSec)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
