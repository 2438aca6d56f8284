// Package generator turns a natural-language question plus retrieved
// schema context into a SQL statement and its explanation.
package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/querybuddy/querybuddy/domain/schema"
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/internal/log"
)

// Sentinel errors for SQL generation.
var (
	// ErrGeneration indicates the text generation provider failed.
	ErrGeneration = errors.New("sql generation failed")

	// ErrMalformedResponse indicates the model reply contained no usable
	// SQL statement.
	ErrMalformedResponse = errors.New("no sql statement in model response")
)

const systemPrompt = `You are an expert SQL analyst. Given a database schema and a question, write a single read-only SQL query that answers it.

Rules:
- Use only SELECT statements (WITH clauses are allowed).
- Use only tables and columns that appear in the schema.
- Return the SQL inside a fenced code block marked sql.
- After the code block, explain in one or two plain sentences what the query does.`

const optimizeSystemPrompt = `You are a SQL performance expert. Analyze SQL queries and suggest optimizations.

Consider:
1. Missing indexes on WHERE/JOIN columns
2. Unnecessary columns in SELECT
3. Inefficient JOINs
4. Missing WHERE clause filters
5. Suboptimal aggregations
6. Missing LIMIT clauses on large result sets

Provide specific, actionable suggestions.`

var sqlFence = regexp.MustCompile("(?s)```sql\\s*(.*?)```")

// Generation is a parsed model reply.
type Generation struct {
	sql         string
	explanation string
}

// SQL returns the generated statement.
func (g Generation) SQL() string { return g.sql }

// Explanation returns the plain-language explanation, possibly empty.
func (g Generation) Explanation() string { return g.explanation }

// Generator produces SQL from questions via a text generation provider.
type Generator struct {
	textGen     provider.TextGenerator
	temperature float64
	maxTokens   int
	logger      *log.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(textGen provider.TextGenerator, temperature float64, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.Default()
	}
	return &Generator{
		textGen:     textGen,
		temperature: temperature,
		maxTokens:   1500,
		logger:      logger,
	}
}

// Request carries everything one generation needs.
type Request struct {
	question  string
	fragments []schema.Fragment
	history   string
}

// NewRequest creates a Request. history is the rendered conversation
// context, empty when the session has no prior turns.
func NewRequest(question string, fragments []schema.Fragment, history string) Request {
	cp := make([]schema.Fragment, len(fragments))
	copy(cp, fragments)
	return Request{
		question:  question,
		fragments: cp,
		history:   history,
	}
}

// Question returns the user's question.
func (r Request) Question() string { return r.question }

// Generate produces SQL and an explanation for the request.
func (g *Generator) Generate(ctx context.Context, req Request) (Generation, error) {
	return g.complete(ctx, req.question, g.userPrompt(req))
}

// GenerateRetry re-prompts after a reply that contained no usable SQL,
// telling the model what was wrong with its previous answer.
func (g *Generator) GenerateRetry(ctx context.Context, req Request) (Generation, error) {
	var b strings.Builder
	b.WriteString(g.userPrompt(req))
	b.WriteString("\n\nYour previous reply contained no SQL code block. Answer again with exactly one SQL statement inside a fenced code block marked sql.")
	return g.complete(ctx, req.question, b.String())
}

// GenerateCorrected re-prompts after a failed execution, giving the model
// the statement that failed and the database's error message.
func (g *Generator) GenerateCorrected(ctx context.Context, req Request, failedSQL, dbError string) (Generation, error) {
	var b strings.Builder
	b.WriteString(g.userPrompt(req))
	b.WriteString("\n\nThe previous query failed. Fix it.\n")
	fmt.Fprintf(&b, "Failed query:\n```sql\n%s\n```\n", failedSQL)
	fmt.Fprintf(&b, "Database error: %s\n", dbError)
	return g.complete(ctx, req.question, b.String())
}

func (g *Generator) complete(ctx context.Context, question, userPrompt string) (Generation, error) {
	chatReq := provider.NewChatCompletionRequest([]provider.Message{
		provider.SystemMessage(systemPrompt),
		provider.UserMessage(userPrompt),
	}).WithTemperature(g.temperature).WithMaxTokens(g.maxTokens)

	resp, err := g.textGen.ChatCompletion(ctx, chatReq)
	if err != nil {
		return Generation{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	generation, err := Parse(resp.Content())
	if err != nil {
		return Generation{}, err
	}

	g.logger.DebugContext(ctx, "sql generated",
		"question", question,
		"sql", generation.sql,
		"tokens", resp.Usage().TotalTokens(),
	)
	return generation, nil
}

// Optimize asks the model for performance suggestions on a SQL statement.
// The statement is analyzed as-is and never executed.
func (g *Generator) Optimize(ctx context.Context, sql string) (string, error) {
	chatReq := provider.NewChatCompletionRequest([]provider.Message{
		provider.SystemMessage(optimizeSystemPrompt),
		provider.UserMessage(fmt.Sprintf("Analyze and suggest optimizations for this SQL query:\n\n%s", sql)),
	}).WithTemperature(g.temperature).WithMaxTokens(g.maxTokens)

	resp, err := g.textGen.ChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	suggestions := strings.TrimSpace(resp.Content())
	g.logger.DebugContext(ctx, "optimization suggested",
		"sql", sql,
		"tokens", resp.Usage().TotalTokens(),
	)
	return suggestions, nil
}

func (g *Generator) userPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Database Schema:\n\n")
	for _, f := range req.fragments {
		b.WriteString(f.Text())
		b.WriteString("\n")
	}
	if req.history != "" {
		b.WriteString("\n")
		b.WriteString(req.history)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %s", req.question)
	return b.String()
}

// Parse extracts the SQL statement and explanation from a model reply.
// The first fenced sql block wins; text outside the block becomes the
// explanation. A reply that is a bare SELECT or WITH statement is
// accepted with an empty explanation.
func Parse(content string) (Generation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Generation{}, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	if match := sqlFence.FindStringSubmatchIndex(content); match != nil {
		sql := strings.TrimSpace(content[match[2]:match[3]])
		if sql == "" {
			return Generation{}, fmt.Errorf("%w: empty sql block", ErrMalformedResponse)
		}
		var parts []string
		if prefix := strings.TrimSpace(content[:match[0]]); prefix != "" {
			parts = append(parts, prefix)
		}
		if suffix := strings.TrimSpace(content[match[1]:]); suffix != "" {
			parts = append(parts, suffix)
		}
		return Generation{sql: sql, explanation: strings.Join(parts, "\n")}, nil
	}

	upper := strings.ToUpper(content)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return Generation{sql: content}, nil
	}

	return Generation{}, fmt.Errorf("%w", ErrMalformedResponse)
}
