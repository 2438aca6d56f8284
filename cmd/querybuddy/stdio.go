package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/internal/log"
	"github.com/querybuddy/querybuddy/internal/mcp"
	"github.com/spf13/cobra"
)

func stdioCmd() *cobra.Command {
	var (
		envFile    string
		configFile string
		dbURL      string
	)

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This allows AI assistants to ask questions about the configured database
and inspect its schema. Configuration is loaded from environment
variables and .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile, configFile, dbURL)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "Target database URL")

	return cmd
}

func runStdio(envFile, configFile, dbURL string) error {
	cfg, err := loadConfig(envFile, configFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, "", 0, dbURL)

	// Logging must not pollute stdout, which carries the MCP protocol.
	logger := log.NewLoggerWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())
	slogger := logger.Slog()

	slogger.Info("starting MCP server", slog.String("version", version))

	client, err := querybuddy.NewFromConfig(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("create querybuddy client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close querybuddy client", slog.Any("error", err))
		}
	}()

	mcpServer := mcp.NewServer(client, version, slogger)
	return mcpServer.ServeStdio()
}
