// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/querybuddy/querybuddy/domain/conversation"
	"github.com/querybuddy/querybuddy/domain/schema"
)

// Assistant provides the question pipeline and schema access for MCP
// tools.
type Assistant interface {
	Ask(ctx context.Context, sessionID, question string) (conversation.Turn, error)
	AskOnce(ctx context.Context, question string) (conversation.Turn, error)
	OptimizeSQL(ctx context.Context, sql string) (string, error)
	Schema() []schema.Fragment
}

// Server wraps the MCP server with querybuddy tools.
type Server struct {
	mcpServer *server.MCPServer
	assistant Assistant
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(assistant Assistant, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		assistant: assistant,
		logger:    logger,
	}

	mcpServer := server.NewMCPServer(
		"querybuddy",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

// registerTools registers all querybuddy tools with the MCP server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Answer a natural-language question about the database by generating and executing a read-only SQL query"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session ID for conversation context; omit for a one-shot question"),
		),
	)
	mcpServer.AddTool(askTool, s.handleAsk)

	schemaTool := mcp.NewTool("schema",
		mcp.WithDescription("Return the introspected schema of the target database"),
	)
	mcpServer.AddTool(schemaTool, s.handleSchema)

	optimizeTool := mcp.NewTool("optimize",
		mcp.WithDescription("Suggest performance optimizations for a SQL query without executing it"),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to analyze"),
		),
	)
	mcpServer.AddTool(optimizeTool, s.handleOptimize)
}

// askResult is the JSON shape returned by the ask tool.
type askResult struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation,omitempty"`
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	RowCount    int      `json:"row_count"`
	Truncated   bool     `json:"truncated"`
	Insight     string   `json:"insight,omitempty"`
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question is required"), nil
	}

	var turn conversation.Turn
	if sessionID := request.GetString("session_id", ""); sessionID != "" {
		turn, err = s.assistant.Ask(ctx, sessionID, question)
	} else {
		turn, err = s.assistant.AskOnce(ctx, question)
	}
	if err != nil {
		s.logger.Error("ask failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}

	result := turn.Result()
	payload := askResult{
		SQL:         turn.SQL(),
		Explanation: turn.Explanation(),
		Columns:     result.Columns(),
		Rows:        result.Rows(),
		RowCount:    result.RowCount(),
		Truncated:   result.Truncated(),
		Insight:     turn.Insight(),
	}

	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleSchema handles the schema tool invocation.
func (s *Server) handleSchema(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fragments := s.assistant.Schema()
	if len(fragments) == 0 {
		return mcp.NewToolResultText("No schema has been introspected yet."), nil
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text()
	}
	return mcp.NewToolResultText(strings.Join(texts, "\n")), nil
}

// handleOptimize handles the optimize tool invocation.
func (s *Server) handleOptimize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sql, err := request.RequireString("sql")
	if err != nil {
		return mcp.NewToolResultError("sql is required"), nil
	}

	suggestions, err := s.assistant.OptimizeSQL(ctx, sql)
	if err != nil {
		s.logger.Error("optimize failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("optimize failed: %v", err)), nil
	}
	return mcp.NewToolResultText(suggestions), nil
}

// MCPServer returns the underlying MCP server for HTTP mounting.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
