package querybuddy

import (
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/querybuddy/querybuddy/internal/log"
)

// clientConfig holds configuration for Client construction.
type clientConfig struct {
	dbURL             string
	textProvider      provider.TextGenerator
	embeddingProvider provider.Embedder
	pipeline          config.PipelineConfig
	apiKeys           []string
	logger            *log.Logger
	insightDisabled   bool
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		pipeline: config.NewPipelineConfig(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithDatabaseURL sets the target database by URL.
// Supported schemes: sqlite://, postgres://, postgresql://.
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.dbURL = url
	}
}

// WithSQLite sets a SQLite file as the target database.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.dbURL = "sqlite://" + path
	}
}

// WithPostgres sets a PostgreSQL DSN as the target database.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.dbURL = dsn
	}
}

// WithOpenAI sets OpenAI as the AI provider (text + embeddings).
func WithOpenAI(apiKey string) Option {
	return func(c *clientConfig) {
		p := provider.NewOpenAIProvider(apiKey)
		c.textProvider = p
		c.embeddingProvider = p
	}
}

// WithOpenAIConfig sets OpenAI with custom configuration, e.g. a
// compatible endpoint behind a custom base URL.
func WithOpenAIConfig(cfg provider.OpenAIConfig) Option {
	return func(c *clientConfig) {
		p := provider.NewOpenAIProviderFromConfig(cfg)
		c.textProvider = p
		c.embeddingProvider = p
	}
}

// WithAnthropic sets Anthropic Claude as the text generation provider.
// Anthropic has no embedding API, so an embedding provider must still be
// configured separately.
func WithAnthropic(apiKey string, opts ...provider.AnthropicOption) Option {
	return func(c *clientConfig) {
		c.textProvider = provider.NewAnthropicProvider(apiKey, opts...)
	}
}

// WithTextProvider sets a custom text generation provider.
func WithTextProvider(p provider.TextGenerator) Option {
	return func(c *clientConfig) {
		c.textProvider = p
	}
}

// WithEmbeddingProvider sets a custom embedding provider.
func WithEmbeddingProvider(p provider.Embedder) Option {
	return func(c *clientConfig) {
		c.embeddingProvider = p
	}
}

// WithPipeline sets the pipeline configuration.
func WithPipeline(p config.PipelineConfig) Option {
	return func(c *clientConfig) {
		c.pipeline = p
	}
}

// WithAPIKeys sets the API keys for HTTP API authentication.
func WithAPIKeys(keys ...string) Option {
	return func(c *clientConfig) {
		c.apiKeys = keys
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithInsightDisabled turns off result insight generation. Turns complete
// with empty insight text.
func WithInsightDisabled() Option {
	return func(c *clientConfig) {
		c.insightDisabled = true
	}
}
