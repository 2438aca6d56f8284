package main

import (
	"context"
	"fmt"
	"strings"

	querybuddy "github.com/querybuddy/querybuddy"
	"github.com/querybuddy/querybuddy/internal/log"
	"github.com/spf13/cobra"
)

func askCmd() *cobra.Command {
	var (
		envFile      string
		configFile   string
		dbURL        string
		showRows     int
		httpCacheDir string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a one-shot question about the database",
		Long: `Ask a single natural-language question about the configured database.

The question is answered without conversation context: the schema is
introspected, a read-only SQL query is generated and executed, and the
result is printed together with the generated SQL and insight.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(envFile, configFile, dbURL, strings.Join(args, " "), showRows, httpCacheDir)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "Target database URL")
	cmd.Flags().IntVar(&showRows, "rows", 25, "Maximum rows to print")
	cmd.Flags().StringVar(&httpCacheDir, "http-cache-dir", "", "Cache embedding HTTP responses in this directory")

	return cmd
}

func runAsk(envFile, configFile, dbURL, question string, showRows int, httpCacheDir string) error {
	cfg, err := loadConfig(envFile, configFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, "", 0, dbURL)

	logger := log.NewLogger(cfg)
	ctx := context.Background()

	extra, cleanup, err := clientOptions(cfg, httpCacheDir)
	if err != nil {
		return fmt.Errorf("configure http cache: %w", err)
	}
	defer func() { _ = cleanup() }()

	client, err := querybuddy.NewFromConfig(ctx, cfg, logger, extra...)
	if err != nil {
		return fmt.Errorf("create querybuddy client: %w", err)
	}
	defer func() { _ = client.Close() }()

	turn, err := client.AskOnce(ctx, question)
	if err != nil {
		return err
	}

	fmt.Printf("SQL:\n%s\n", turn.SQL())
	if turn.Explanation() != "" {
		fmt.Printf("\n%s\n", turn.Explanation())
	}

	result := turn.Result()
	fmt.Printf("\n%s\n", strings.Join(result.Columns(), " | "))
	for i, row := range result.Rows() {
		if i >= showRows {
			fmt.Printf("... (%d more rows)\n", result.RowCount()-showRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(cells, " | "))
	}
	if result.Truncated() {
		fmt.Println("(result truncated at row cap)")
	}

	if turn.Insight() != "" {
		fmt.Printf("\n%s\n", turn.Insight())
	}
	return nil
}
