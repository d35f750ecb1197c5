package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/config"
	"github.com/kailas-cloud/flatrag/internal/engine"
	logpkg "github.com/kailas-cloud/flatrag/internal/logger"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string

	dataDir       string
	embeddingsDir string
	embeddingURL  string
	completionURL string
	apiKey        string
	model         string
	debug         bool
	chunkSize     int
	maxResults    int
	minSimilarity float64
	maxDistance   float64
	temperature   float64
	maxTokens     int
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "flatrag",
		Short:        "Flat-file semantic retrieval over your documents",
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file (default: config/$ENV.yaml when present)")
	f.StringVar(&opts.dataDir, "data-dir", "", "root directory for stored data")
	f.StringVar(&opts.embeddingsDir, "embeddings-dir", "", "chunk store directory under the data dir")
	f.StringVar(&opts.embeddingURL, "embedding-url", "", "embedding endpoint")
	f.StringVar(&opts.completionURL, "completion-url", "", "completion endpoint (empty: return the prompt)")
	f.StringVar(&opts.apiKey, "api-key", "", "bearer token for both endpoints")
	f.StringVar(&opts.model, "model", "", "completion model")
	f.BoolVar(&opts.debug, "debug", false, "verbose logging")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "lines per chunk")
	f.IntVar(&opts.maxResults, "max-results", 0, "maximum chunks per search")
	f.Float64Var(&opts.minSimilarity, "min-similarity", 0, "minimum cosine similarity, inclusive")
	f.Float64Var(&opts.maxDistance, "max-distance", 0, "maximum euclidean distance, inclusive")
	f.Float64Var(&opts.temperature, "temperature", 0, "completion temperature")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "completion token limit")

	root.AddCommand(
		newIngestCmd(opts),
		newSearchCmd(opts),
		newQueryCmd(opts),
		newTopicsCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return root
}

// overrides collects the flags that were set explicitly on the command line.
func (o *options) overrides(cmd *cobra.Command) config.Overrides {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	var ov config.Overrides
	if changed("data-dir") {
		ov.DataDir = &o.dataDir
	}
	if changed("embeddings-dir") {
		ov.EmbeddingsDir = &o.embeddingsDir
	}
	if changed("embedding-url") {
		ov.EmbeddingURL = &o.embeddingURL
	}
	if changed("completion-url") {
		ov.CompletionURL = &o.completionURL
	}
	if changed("api-key") {
		ov.APIKey = &o.apiKey
	}
	if changed("model") {
		ov.Model = &o.model
	}
	if changed("debug") {
		ov.Debug = &o.debug
	}
	if changed("chunk-size") {
		ov.ChunkSize = &o.chunkSize
	}
	if changed("max-results") {
		ov.MaxResults = &o.maxResults
	}
	if changed("min-similarity") {
		ov.MinSimilarity = &o.minSimilarity
	}
	if changed("max-distance") {
		ov.MaxDistance = &o.maxDistance
	}
	if changed("temperature") {
		ov.Temperature = &o.temperature
	}
	if changed("max-tokens") {
		ov.MaxTokens = &o.maxTokens
	}
	return ov
}

// loadConfig resolves defaults < YAML < environment < flags.
func (o *options) loadConfig(cmd *cobra.Command) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load(config.GetEnv())
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg = o.overrides(cmd).Apply(cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup loads configuration and builds the logger and engine for a command.
func (o *options) setup(cmd *cobra.Command) (*engine.Engine, *zap.Logger, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	env := config.GetEnv()
	if env == "local" && !longRunning(cmd) {
		env = logpkg.EnvCLI
	}
	logger, err := logpkg.NewLogger(env, logpkg.Options{Level: cfg.Logging.Level, Debug: cfg.Debug})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	cmd.SetContext(logpkg.ContextWithLogger(cmd.Context(), logger))
	return engine.New(cfg, logger), logger, nil
}

// longRunning reports whether cmd is a server or a watcher, which log at the environment's level.
func longRunning(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "serve", "mcp":
		return true
	}
	watch := cmd.Flags().Lookup("watch")
	return watch != nil && watch.Changed
}
