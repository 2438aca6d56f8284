// Package main is the entry point for the querybuddy CLI.
package main

import (
	"fmt"
	"os"

	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querybuddy",
		Short: "Conversational SQL assistant",
		Long:  `QueryBuddy answers natural-language questions about a SQL database by generating, validating and executing read-only SQL queries.`,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(askCmd())
	cmd.AddCommand(stdioCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from a .env file, environment variables
// and an optional YAML config file, in that order.
func loadConfig(envFile, configFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if configFile != "" {
		fileCfg, err := config.LoadYAML(configFile)
		if err != nil {
			return config.AppConfig{}, fmt.Errorf("load config file: %w", err)
		}
		cfg = fileCfg.Overlay(cfg)
	}
	return cfg, nil
}
