// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8080
	DefaultLogLevel         = "INFO"
	DefaultRetrievalK       = 5
	DefaultRowCap           = 1000
	DefaultQueryTimeout     = 30 * time.Second
	DefaultHistoryWindow    = 5
	DefaultSampleRows       = 3
	DefaultMaxCorrections   = 1
	DefaultTemperature      = 0.1
	DefaultInsightTemp      = 0.3
	DefaultEndpointTimeout  = 60 * time.Second
	DefaultEndpointRetries  = 3
	DefaultInitialDelay     = 2 * time.Second
	DefaultBackoffFactor    = 2.0
	DefaultChatModel        = "gpt-4-turbo-preview"
	DefaultAnthropicModel   = "claude-sonnet-4-20250514"
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbedParallelism = 4
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// AI provider kinds for an endpoint.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Endpoint configures an AI service endpoint.
type Endpoint struct {
	provider      string
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEndpoint creates an Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		provider:      ProviderOpenAI,
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointRetries,
		initialDelay:  DefaultInitialDelay,
		backoffFactor: DefaultBackoffFactor,
	}
}

// Provider returns the provider kind, one of ProviderOpenAI or
// ProviderAnthropic.
func (e Endpoint) Provider() string { return e.provider }

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// IsConfigured returns true if the endpoint has an API key.
func (e Endpoint) IsConfigured() bool { return e.apiKey != "" }

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithProvider sets the provider kind. Unknown values fall back to
// ProviderOpenAI.
func WithProvider(p string) EndpointOption {
	return func(e *Endpoint) {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case ProviderAnthropic:
			e.provider = ProviderAnthropic
		default:
			e.provider = ProviderOpenAI
		}
	}
}

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// PipelineConfig bounds the per-turn question pipeline.
type PipelineConfig struct {
	retrievalK     int
	rowCap         int
	queryTimeout   time.Duration
	historyWindow  int
	sampleRows     int
	maxCorrections int
	temperature    float64
	insightTemp    float64
}

// NewPipelineConfig creates a PipelineConfig with defaults.
func NewPipelineConfig() PipelineConfig {
	return PipelineConfig{
		retrievalK:     DefaultRetrievalK,
		rowCap:         DefaultRowCap,
		queryTimeout:   DefaultQueryTimeout,
		historyWindow:  DefaultHistoryWindow,
		sampleRows:     DefaultSampleRows,
		maxCorrections: DefaultMaxCorrections,
		temperature:    DefaultTemperature,
		insightTemp:    DefaultInsightTemp,
	}
}

// RetrievalK returns the number of schema fragments retrieved per question.
func (p PipelineConfig) RetrievalK() int { return p.retrievalK }

// RowCap returns the maximum number of rows a query may return.
func (p PipelineConfig) RowCap() int { return p.rowCap }

// QueryTimeout returns the execution timeout for one query.
func (p PipelineConfig) QueryTimeout() time.Duration { return p.queryTimeout }

// HistoryWindow returns how many recent turns are included in prompts.
func (p PipelineConfig) HistoryWindow() int { return p.historyWindow }

// SampleRows returns how many rows are sampled per table during
// introspection.
func (p PipelineConfig) SampleRows() int { return p.sampleRows }

// MaxCorrections returns the number of corrective regeneration attempts
// after a failed execution.
func (p PipelineConfig) MaxCorrections() int { return p.maxCorrections }

// Temperature returns the sampling temperature for SQL generation.
func (p PipelineConfig) Temperature() float64 { return p.temperature }

// InsightTemperature returns the sampling temperature for insight
// generation.
func (p PipelineConfig) InsightTemperature() float64 { return p.insightTemp }

// WithRetrievalK returns a new config with the specified retrieval count.
func (p PipelineConfig) WithRetrievalK(k int) PipelineConfig {
	if k > 0 {
		p.retrievalK = k
	}
	return p
}

// WithRowCap returns a new config with the specified row cap.
func (p PipelineConfig) WithRowCap(n int) PipelineConfig {
	if n > 0 {
		p.rowCap = n
	}
	return p
}

// WithQueryTimeout returns a new config with the specified timeout.
func (p PipelineConfig) WithQueryTimeout(d time.Duration) PipelineConfig {
	if d > 0 {
		p.queryTimeout = d
	}
	return p
}

// WithHistoryWindow returns a new config with the specified window.
func (p PipelineConfig) WithHistoryWindow(n int) PipelineConfig {
	if n >= 0 {
		p.historyWindow = n
	}
	return p
}

// WithSampleRows returns a new config with the specified sample row count.
func (p PipelineConfig) WithSampleRows(n int) PipelineConfig {
	if n >= 0 {
		p.sampleRows = n
	}
	return p
}

// WithMaxCorrections returns a new config with the specified correction
// budget.
func (p PipelineConfig) WithMaxCorrections(n int) PipelineConfig {
	if n >= 0 {
		p.maxCorrections = n
	}
	return p
}

// WithTemperature returns a new config with the specified generation
// temperature.
func (p PipelineConfig) WithTemperature(t float64) PipelineConfig {
	if t >= 0 {
		p.temperature = t
	}
	return p
}

// WithInsightTemperature returns a new config with the specified insight
// temperature.
func (p PipelineConfig) WithInsightTemperature(t float64) PipelineConfig {
	if t >= 0 {
		p.insightTemp = t
	}
	return p
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host               string
	port               int
	dbURL              string
	logLevel           string
	logFormat          LogFormat
	apiKeys            []string
	embeddingEndpoint  *Endpoint
	generationEndpoint *Endpoint
	pipeline           PipelineConfig
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		host:      DefaultHost,
		port:      DefaultPort,
		logLevel:  DefaultLogLevel,
		logFormat: LogFormatPretty,
		apiKeys:   []string{},
		pipeline:  NewPipelineConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DBURL returns the target database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// EmbeddingEndpoint returns the embedding endpoint config, nil when not
// configured.
func (c AppConfig) EmbeddingEndpoint() *Endpoint { return c.embeddingEndpoint }

// GenerationEndpoint returns the text generation endpoint config, nil when
// not configured.
func (c AppConfig) GenerationEndpoint() *Endpoint { return c.generationEndpoint }

// Pipeline returns the pipeline config.
func (c AppConfig) Pipeline() PipelineConfig { return c.pipeline }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDBURL sets the target database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = &e }
}

// WithGenerationEndpoint sets the text generation endpoint.
func WithGenerationEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.generationEndpoint = &e }
}

// WithPipelineConfig sets the pipeline config.
func WithPipelineConfig(p PipelineConfig) AppConfigOption {
	return func(c *AppConfig) { c.pipeline = p }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes describing the configuration.
// Credentials are masked or reduced to counts; they never reach the log.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.Addr()),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedding_model", endpointModel(c.embeddingEndpoint)),
		slog.String("generation_model", endpointModel(c.generationEndpoint)),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.Int("retrieval_k", c.pipeline.retrievalK),
		slog.Int("row_cap", c.pipeline.rowCap),
		slog.Duration("query_timeout", c.pipeline.queryTimeout),
		slog.Int("history_window", c.pipeline.historyWindow),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(not configured)"
	}
	return MaskDBURL(c.dbURL)
}

// MaskDBURL strips credentials from a database URL for logging. SQLite
// paths carry no credentials and pass through unchanged.
func MaskDBURL(url string) string {
	if strings.HasPrefix(url, "sqlite:") {
		return url
	}
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return "***"
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}

func endpointModel(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	return e.Model()
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
