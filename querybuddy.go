// Package querybuddy provides a conversational assistant that answers
// natural-language questions about a SQL database.
//
// On startup the client introspects the target database, embeds a textual
// fragment per table, and caches the vectors. Each question retrieves the
// most relevant fragments, asks a language model for a read-only SQL
// statement, validates and executes it, and summarizes the result.
//
// Basic usage:
//
//	client, err := querybuddy.New(ctx,
//	    querybuddy.WithSQLite("shop.db"),
//	    querybuddy.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	session := client.Sessions().Create()
//	turn, err := client.Ask(ctx, session.ID(), "who are my top customers?")
//	fmt.Println(turn.SQL())
//	fmt.Println(turn.Insight())
package querybuddy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/querybuddy/querybuddy/application/service"
	"github.com/querybuddy/querybuddy/domain/conversation"
	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/domain/schema"
	"github.com/querybuddy/querybuddy/domain/search"
	"github.com/querybuddy/querybuddy/infrastructure/auditlog"
	"github.com/querybuddy/querybuddy/infrastructure/executor"
	"github.com/querybuddy/querybuddy/infrastructure/generator"
	"github.com/querybuddy/querybuddy/infrastructure/insight"
	"github.com/querybuddy/querybuddy/infrastructure/introspect"
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/infrastructure/vector"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/querybuddy/querybuddy/internal/database"
	"github.com/querybuddy/querybuddy/internal/log"
)

// Version is the library version reported by the API and MCP servers.
const Version = "0.1.0"

// Configuration errors returned by New.
var (
	// ErrNoDatabase indicates no database was configured.
	ErrNoDatabase = errors.New("querybuddy: no database configured")

	// ErrNoTextProvider indicates no text generation provider was configured.
	ErrNoTextProvider = errors.New("querybuddy: no text generation provider configured")

	// ErrNoEmbeddingProvider indicates no embedding provider was configured.
	ErrNoEmbeddingProvider = errors.New("querybuddy: no embedding provider configured")
)

// Client is the main entry point for the querybuddy library.
type Client struct {
	db        database.Database
	loader    *introspect.Loader
	index     *vector.Index
	assistant *service.Assistant
	sessions  *service.SessionRegistry
	executor  *executor.Executor
	generator *generator.Generator
	audit     *auditlog.Store

	fragments []schema.Fragment

	pipeline config.PipelineConfig
	apiKeys  []string
	logger   *log.Logger
	closed   atomic.Bool
	mu       sync.Mutex
}

// New creates a Client, introspects the target database and builds the
// schema embedding index. The first call embeds every table fragment;
// later calls reuse cached vectors for unchanged tables.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dbURL == "" {
		return nil, ErrNoDatabase
	}
	if cfg.textProvider == nil {
		return nil, ErrNoTextProvider
	}
	if cfg.embeddingProvider == nil {
		return nil, ErrNoEmbeddingProvider
	}

	logger := cfg.logger
	if logger == nil {
		logger = log.Default()
	}

	db, err := database.NewDatabase(ctx, cfg.dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	index := vector.NewIndex(db, cfg.embeddingProvider, logger)
	if err := index.Migrate(); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("migrate embedding cache: %w", err), errClose)
	}

	audit := auditlog.NewStore(db)
	if err := audit.Migrate(); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("migrate query log: %w", err), errClose)
	}

	pipeline := cfg.pipeline
	loader := introspect.NewLoader(db, pipeline.SampleRows())

	gen := generator.NewGenerator(cfg.textProvider, pipeline.Temperature(), logger)
	exec := executor.NewExecutor(db, executor.NewPolicy(pipeline.RowCap()), pipeline.QueryTimeout(), logger)

	var insighter service.InsightGenerator
	if !cfg.insightDisabled {
		insighter = insight.NewInsighter(cfg.textProvider, pipeline.InsightTemperature(), logger)
	}

	client := &Client{
		db:        db,
		loader:    loader,
		index:     index,
		assistant: service.NewAssistant(index, gen, exec, insighter, pipeline, logger),
		sessions:  service.NewSessionRegistry(),
		executor:  exec,
		generator: gen,
		audit:     audit,
		pipeline:  pipeline,
		apiKeys:   cfg.apiKeys,
		logger:    logger,
	}

	if err := client.RefreshSchema(ctx); err != nil {
		errClose := db.Close()
		return nil, errors.Join(err, errClose)
	}

	return client, nil
}

// RefreshSchema re-introspects the target database and rebuilds the
// embedding index. Fragments whose content is unchanged keep their cached
// vectors.
func (c *Client) RefreshSchema(ctx context.Context) error {
	if c.closed.Load() {
		return service.ErrClientClosed
	}

	fragments, err := c.loader.Load(ctx)
	if err != nil {
		return err
	}
	if err := c.index.Build(ctx, fragments); err != nil {
		return err
	}

	c.mu.Lock()
	c.fragments = fragments
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "schema indexed", "fragments", len(fragments))
	return nil
}

// Schema returns the fragments from the last introspection run.
func (c *Client) Schema() []schema.Fragment {
	c.mu.Lock()
	defer c.mu.Unlock()
	fragments := make([]schema.Fragment, len(c.fragments))
	copy(fragments, c.fragments)
	return fragments
}

// Sessions returns the session registry.
func (c *Client) Sessions() *service.SessionRegistry {
	return c.sessions
}

// Assistant returns the turn pipeline service.
func (c *Client) Assistant() *service.Assistant {
	return c.assistant
}

// Ask answers a question within an existing session.
func (c *Client) Ask(ctx context.Context, sessionID, question string) (conversation.Turn, error) {
	if c.closed.Load() {
		return conversation.Turn{}, service.ErrClientClosed
	}
	session, err := c.sessions.Get(sessionID)
	if err != nil {
		return conversation.Turn{}, err
	}

	start := time.Now()
	turn, err := c.assistant.Ask(ctx, session, question)
	if err != nil {
		return conversation.Turn{}, err
	}
	c.logTurn(ctx, session.ID(), turn, time.Since(start))
	return turn, nil
}

// AskOnce answers a single question in a throwaway session. Useful for
// one-shot CLI invocations where no conversation context accumulates.
func (c *Client) AskOnce(ctx context.Context, question string) (conversation.Turn, error) {
	if c.closed.Load() {
		return conversation.Turn{}, service.ErrClientClosed
	}
	session := c.sessions.Create()
	defer func() { _ = c.sessions.Delete(session.ID()) }()

	start := time.Now()
	turn, err := c.assistant.Ask(ctx, session, question)
	if err != nil {
		return conversation.Turn{}, err
	}
	c.logTurn(ctx, session.ID(), turn, time.Since(start))
	return turn, nil
}

// OptimizeSQL asks the model for performance suggestions on a SQL
// statement. The statement is analyzed but never executed, so it is not
// subject to the read-only policy.
func (c *Client) OptimizeSQL(ctx context.Context, sql string) (string, error) {
	if c.closed.Load() {
		return "", service.ErrClientClosed
	}
	if strings.TrimSpace(sql) == "" {
		return "", fmt.Errorf("%w: empty statement", search.ErrInvalidArgument)
	}
	return c.generator.Optimize(ctx, sql)
}

// logTurn appends a completed turn to the query log. Audit failures are
// logged and swallowed so they never fail the turn itself.
func (c *Client) logTurn(ctx context.Context, sessionID string, turn conversation.Turn, elapsed time.Duration) {
	rec := query.NewRecord(
		sessionID,
		turn.Question(),
		turn.SQL(),
		turn.Result().RowCount(),
		turn.Result().Truncated(),
		elapsed,
		turn.CreatedAt(),
	)
	if err := c.audit.Append(ctx, rec); err != nil {
		c.logger.WarnContext(ctx, "query log append failed", "error", err)
	}
}

// QueryLog returns the most recent audit log entries across all sessions,
// newest first. A non-positive limit returns everything.
func (c *Client) QueryLog(ctx context.Context, limit int) ([]query.Record, error) {
	if c.closed.Load() {
		return nil, service.ErrClientClosed
	}
	return c.audit.Recent(ctx, limit)
}

// SessionQueryLog returns the audit log entries for one session, newest
// first.
func (c *Client) SessionQueryLog(ctx context.Context, sessionID string, limit int) ([]query.Record, error) {
	if c.closed.Load() {
		return nil, service.ErrClientClosed
	}
	return c.audit.BySession(ctx, sessionID, limit)
}

// APIKeys returns the keys that protect mutating HTTP endpoints.
func (c *Client) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// Pipeline returns the pipeline configuration in effect.
func (c *Client) Pipeline() config.PipelineConfig {
	return c.pipeline
}

// Logger returns the client's logger as a slog.Logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger.Slog()
}

// Healthy reports whether the target database answers a ping.
func (c *Client) Healthy(ctx context.Context) error {
	if c.closed.Load() {
		return service.ErrClientClosed
	}
	sqlDB, err := c.db.Session(ctx).DB()
	if err != nil {
		return fmt.Errorf("access connection pool: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the database connection. Further calls on the client
// return ErrClientClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return service.ErrClientClosed
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	c.logger.Info("querybuddy client closed")
	return nil
}

// newProviderFromEndpoint builds an OpenAI-compatible provider from an
// endpoint configuration.
func newProviderFromEndpoint(e *config.Endpoint) *provider.OpenAIProvider {
	return provider.NewOpenAIProviderFromConfig(provider.OpenAIConfig{
		APIKey:         e.APIKey(),
		BaseURL:        e.BaseURL(),
		ChatModel:      e.Model(),
		EmbeddingModel: e.Model(),
		Timeout:        e.Timeout(),
		MaxRetries:     e.MaxRetries(),
		InitialDelay:   e.InitialDelay(),
		BackoffFactor:  e.BackoffFactor(),
	})
}

// newTextProviderFromEndpoint builds a text generation provider from an
// endpoint configuration, honoring the endpoint's provider kind.
func newTextProviderFromEndpoint(e *config.Endpoint) provider.TextGenerator {
	if e.Provider() == config.ProviderAnthropic {
		return provider.NewAnthropicProviderFromConfig(provider.AnthropicConfig{
			APIKey:        e.APIKey(),
			BaseURL:       e.BaseURL(),
			Model:         e.Model(),
			Timeout:       e.Timeout(),
			MaxRetries:    e.MaxRetries(),
			InitialDelay:  e.InitialDelay(),
			BackoffFactor: e.BackoffFactor(),
		})
	}
	return newProviderFromEndpoint(e)
}

// NewFromConfig creates a Client from a resolved application config, as
// loaded from the environment or a YAML file. Extra options are applied
// last, so they override the config-derived wiring.
func NewFromConfig(ctx context.Context, cfg config.AppConfig, logger *log.Logger, extra ...Option) (*Client, error) {
	opts := []Option{
		WithDatabaseURL(cfg.DBURL()),
		WithPipeline(cfg.Pipeline()),
		WithAPIKeys(cfg.APIKeys()...),
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	if e := cfg.GenerationEndpoint(); e != nil && e.IsConfigured() {
		opts = append(opts, WithTextProvider(newTextProviderFromEndpoint(e)))
	}
	if e := cfg.EmbeddingEndpoint(); e != nil && e.IsConfigured() {
		opts = append(opts, WithEmbeddingProvider(newProviderFromEndpoint(e)))
	}
	opts = append(opts, extra...)
	return New(ctx, opts...)
}
