package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/infrastructure/api"
	apimiddleware "github.com/querybuddy/querybuddy/infrastructure/api/middleware"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/querybuddy/querybuddy/internal/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		envFile      string
		configFile   string
		host         string
		port         int
		dbURL        string
		httpCacheDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. YAML config file (if --config specified)
  5. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DB_URL                       Target database URL (sqlite:// or postgres://)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  API_KEYS                     Comma-separated list of valid API keys

  EMBEDDING_ENDPOINT_*         Embedding AI service configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (default: text-embedding-3-small)
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 3)

  GENERATION_ENDPOINT_*        SQL generation AI service configuration
    PROVIDER                   openai or anthropic (default: openai)
    (other fields as EMBEDDING_ENDPOINT; MODEL defaults per provider)

  PIPELINE_RETRIEVAL_K         Schema fragments retrieved per question (default: 5)
  PIPELINE_ROW_CAP             Maximum rows returned per query (default: 1000)
  PIPELINE_QUERY_TIMEOUT       Query timeout in seconds (default: 30)
  PIPELINE_HISTORY_WINDOW      Turns of conversation context (default: 5)
  PIPELINE_SAMPLE_ROWS         Sample rows per schema fragment (default: 3)
  PIPELINE_MAX_CORRECTIONS     SQL correction attempts per turn (default: 1)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, configFile, host, port, dbURL, httpCacheDir)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "Target database URL")
	cmd.Flags().StringVar(&httpCacheDir, "http-cache-dir", "", "Cache embedding HTTP responses in this directory")

	return cmd
}

func runServe(envFile, configFile, host string, port int, dbURL, httpCacheDir string) error {
	cfg, err := loadConfig(envFile, configFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port, dbURL)

	addr := cfg.Addr()
	logger := log.NewLogger(cfg)
	slogger := logger.Slog()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting querybuddy", attrs...)

	extra, cleanup, err := clientOptions(cfg, httpCacheDir)
	if err != nil {
		return fmt.Errorf("configure http cache: %w", err)
	}
	defer func() { _ = cleanup() }()

	client, err := querybuddy.NewFromConfig(context.Background(), cfg, logger, extra...)
	if err != nil {
		return fmt.Errorf("create querybuddy client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close querybuddy client", slog.Any("error", err))
		}
	}()

	apiServer := api.NewAPIServer(client, nil)
	router := apiServer.Router()

	// Apply custom middleware (MUST be done before MountRoutes)
	router.Use(apimiddleware.CorrelationID)

	apiServer.MountRoutes()

	// Root endpoint with API info
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"querybuddy","version":"%s","docs":"/docs"}`, version)
	})

	// Documentation routes
	docsRouter := apiServer.DocsRouter("/docs/openapi.json")
	router.Mount("/docs", docsRouter.Routes())

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := api.NewServer(addr, slogger)
	server.Router().Mount("/", router)

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		cancel()
		if err := server.Shutdown(ctx); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	slogger.Info("starting server", slog.String("addr", addr))
	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int, dbURL string) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}
	if dbURL != "" {
		opts = append(opts, config.WithDBURL(dbURL))
	}

	return cfg.Apply(opts...)
}
