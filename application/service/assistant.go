// Package service contains the application services that orchestrate the
// domain and infrastructure layers.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/querybuddy/querybuddy/domain/conversation"
	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/domain/schema"
	"github.com/querybuddy/querybuddy/domain/search"
	"github.com/querybuddy/querybuddy/infrastructure/generator"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/querybuddy/querybuddy/internal/log"
)

// Retriever returns the schema fragments most relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]schema.Fragment, error)
}

// SQLGenerator turns a question plus schema context into SQL.
type SQLGenerator interface {
	Generate(ctx context.Context, req generator.Request) (generator.Generation, error)
	GenerateRetry(ctx context.Context, req generator.Request) (generator.Generation, error)
	GenerateCorrected(ctx context.Context, req generator.Request, failedSQL, dbError string) (generator.Generation, error)
}

// QueryExecutor validates and runs a SQL statement.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) (query.Result, error)
}

// InsightGenerator interprets a query result for the user.
type InsightGenerator interface {
	Generate(ctx context.Context, question, sql string, result query.Result) (string, error)
}

// Assistant runs the question-to-insight pipeline for one turn at a time.
// It is safe for concurrent use across sessions.
type Assistant struct {
	retriever Retriever
	generator SQLGenerator
	executor  QueryExecutor
	insighter InsightGenerator
	pipeline  config.PipelineConfig
	logger    *log.Logger
}

// NewAssistant creates an Assistant. insighter may be nil, in which case
// turns complete without insight text.
func NewAssistant(
	retriever Retriever,
	sqlGen SQLGenerator,
	executor QueryExecutor,
	insighter InsightGenerator,
	pipeline config.PipelineConfig,
	logger *log.Logger,
) *Assistant {
	if logger == nil {
		logger = log.Default()
	}
	return &Assistant{
		retriever: retriever,
		generator: sqlGen,
		executor:  executor,
		insighter: insighter,
		pipeline:  pipeline,
		logger:    logger,
	}
}

// Ask answers one question within the given session. On success the
// completed turn is appended to the session history and returned. On any
// failure the history is left untouched, so a later retry starts from the
// same context.
func (a *Assistant) Ask(ctx context.Context, session *Session, question string) (conversation.Turn, error) {
	if question == "" {
		return conversation.Turn{}, fmt.Errorf("%w: empty question", search.ErrInvalidArgument)
	}
	ctx = log.WithSessionID(ctx, session.ID())

	fragments, err := a.retriever.Retrieve(ctx, question, a.pipeline.RetrievalK())
	if err != nil {
		return conversation.Turn{}, err
	}

	history := session.Manager().PromptContext(a.pipeline.HistoryWindow())
	req := generator.NewRequest(question, fragments, history)

	generation, err := a.generate(ctx, req)
	if err != nil {
		return conversation.Turn{}, err
	}

	generation, result, err := a.execute(ctx, req, generation)
	if err != nil {
		return conversation.Turn{}, err
	}

	insightText := a.insight(ctx, question, generation.SQL(), result)

	turn := session.Manager().Append(conversation.NewTurn(
		question, generation.SQL(), generation.Explanation(), result, insightText))
	a.logger.InfoContext(ctx, "turn completed",
		"turn", turn.Index(),
		"rows", result.RowCount(),
		"truncated", result.Truncated(),
	)
	return turn, nil
}

// generate asks the model for SQL, re-prompting once when the reply
// contained no usable statement. The retry tells the model what was
// missing from its previous answer.
func (a *Assistant) generate(ctx context.Context, req generator.Request) (generator.Generation, error) {
	generation, err := a.generator.Generate(ctx, req)
	if errors.Is(err, generator.ErrMalformedResponse) {
		a.logger.WarnContext(ctx, "malformed model reply, re-prompting", "error", err)
		generation, err = a.generator.GenerateRetry(ctx, req)
	}
	if err != nil {
		return generator.Generation{}, err
	}
	return generation, nil
}

// execute runs the generated SQL. When the database rejects it, the model
// is shown the failing statement and the database error and asked to fix
// it, up to MaxCorrections times. Safety rejections and timeouts are not
// correctable.
func (a *Assistant) execute(ctx context.Context, req generator.Request, generation generator.Generation) (generator.Generation, query.Result, error) {
	result, err := a.executor.Execute(ctx, generation.SQL())
	for attempt := 0; err != nil && errors.Is(err, query.ErrQueryExecution) && attempt < a.pipeline.MaxCorrections(); attempt++ {
		a.logger.WarnContext(ctx, "query failed, asking model for a correction",
			"attempt", attempt+1,
			"error", err,
		)
		corrected, genErr := a.generator.GenerateCorrected(ctx, req, generation.SQL(), err.Error())
		if genErr != nil {
			return generator.Generation{}, query.Result{}, genErr
		}
		generation = corrected
		result, err = a.executor.Execute(ctx, generation.SQL())
	}
	if err != nil {
		return generator.Generation{}, query.Result{}, err
	}
	return generation, result, nil
}

// insight produces the narrative for a result. Failures are logged and
// swallowed; the turn completes with empty insight.
func (a *Assistant) insight(ctx context.Context, question, sql string, result query.Result) string {
	if a.insighter == nil {
		return ""
	}
	text, err := a.insighter.Generate(ctx, question, sql, result)
	if err != nil {
		a.logger.WarnContext(ctx, "insight generation failed", "error", err)
		return ""
	}
	return text
}
