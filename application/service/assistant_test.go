package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/querybuddy/querybuddy/application/service"
	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/domain/schema"
	"github.com/querybuddy/querybuddy/domain/search"
	"github.com/querybuddy/querybuddy/infrastructure/generator"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	fragments []schema.Fragment
	err       error
	calls     int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ int) ([]schema.Fragment, error) {
	f.calls++
	return f.fragments, f.err
}

// fakeSQLGen replays scripted replies in order. Corrected calls record
// what the model was told about the failure.
type fakeSQLGen struct {
	replies        []string
	errs           []error
	calls          int
	retryCalls     int
	correctedCalls int
	lastFailedSQL  string
	lastDBError    string
}

func (f *fakeSQLGen) next() (generator.Generation, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return generator.Generation{}, f.errs[i]
	}
	return generator.Parse(f.replies[i])
}

func (f *fakeSQLGen) Generate(_ context.Context, _ generator.Request) (generator.Generation, error) {
	return f.next()
}

func (f *fakeSQLGen) GenerateRetry(_ context.Context, _ generator.Request) (generator.Generation, error) {
	f.retryCalls++
	return f.next()
}

func (f *fakeSQLGen) GenerateCorrected(_ context.Context, _ generator.Request, failedSQL, dbError string) (generator.Generation, error) {
	f.correctedCalls++
	f.lastFailedSQL = failedSQL
	f.lastDBError = dbError
	return f.next()
}

type fakeExecutor struct {
	results map[string]query.Result
	errs    map[string]error
	calls   int
}

func (f *fakeExecutor) Execute(_ context.Context, sql string) (query.Result, error) {
	f.calls++
	if err, ok := f.errs[sql]; ok {
		return query.Result{}, err
	}
	return f.results[sql], nil
}

type fakeInsighter struct {
	text  string
	err   error
	calls int
}

func (f *fakeInsighter) Generate(_ context.Context, _, _ string, _ query.Result) (string, error) {
	f.calls++
	return f.text, f.err
}

func fenced(sql string) string {
	return fmt.Sprintf("```sql\n%s\n```\nExplains itself.", sql)
}

func oneRow() query.Result {
	return query.NewResult([]string{"n"}, [][]any{{int64(42)}}, false)
}

func newAssistant(gen *fakeSQLGen, exec *fakeExecutor, ins *fakeInsighter) (*service.Assistant, *service.SessionRegistry) {
	retriever := &fakeRetriever{fragments: []schema.Fragment{
		schema.NewFragment("customers", []schema.Column{
			schema.NewColumn("id", "INTEGER", false, true),
		}, nil),
	}}
	var insighter service.InsightGenerator
	if ins != nil {
		insighter = ins
	}
	a := service.NewAssistant(retriever, gen, exec, insighter, config.NewPipelineConfig(), nil)
	return a, service.NewSessionRegistry()
}

func TestAskHappyPath(t *testing.T) {
	gen := &fakeSQLGen{replies: []string{fenced("SELECT COUNT(*) AS n FROM customers")}}
	exec := &fakeExecutor{results: map[string]query.Result{
		"SELECT COUNT(*) AS n FROM customers": oneRow(),
	}}
	ins := &fakeInsighter{text: "- There are 42 customers."}

	a, sessions := newAssistant(gen, exec, ins)
	session := sessions.Create()

	turn, err := a.Ask(context.Background(), session, "how many customers?")
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(*) AS n FROM customers", turn.SQL())
	assert.Equal(t, "Explains itself.", turn.Explanation())
	assert.Equal(t, 1, turn.Result().RowCount())
	assert.Equal(t, "- There are 42 customers.", turn.Insight())
	assert.Equal(t, 1, session.Manager().Len())
	assert.Equal(t, 0, turn.Index())
}

func TestAskEmptyQuestion(t *testing.T) {
	a, sessions := newAssistant(&fakeSQLGen{}, &fakeExecutor{}, nil)
	session := sessions.Create()

	_, err := a.Ask(context.Background(), session, "")
	assert.ErrorIs(t, err, search.ErrInvalidArgument)
	assert.Equal(t, 0, session.Manager().Len())
}

func TestAskRepromptsOnMalformedReply(t *testing.T) {
	gen := &fakeSQLGen{
		replies: []string{"I cannot answer that.", fenced("SELECT 1")},
	}
	exec := &fakeExecutor{results: map[string]query.Result{"SELECT 1": oneRow()}}

	a, sessions := newAssistant(gen, exec, nil)
	session := sessions.Create()

	turn, err := a.Ask(context.Background(), session, "anything?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", turn.SQL())
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, 1, gen.retryCalls)
}

func TestAskMalformedTwiceFails(t *testing.T) {
	gen := &fakeSQLGen{replies: []string{"nope", "still nope"}}

	a, sessions := newAssistant(gen, &fakeExecutor{}, nil)
	session := sessions.Create()

	_, err := a.Ask(context.Background(), session, "anything?")
	assert.ErrorIs(t, err, generator.ErrMalformedResponse)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, 1, gen.retryCalls)
	assert.Equal(t, 0, session.Manager().Len())
}

func TestAskCorrectsFailedQuery(t *testing.T) {
	bad := "SELECT * FROM customer"
	good := "SELECT * FROM customers"
	gen := &fakeSQLGen{replies: []string{fenced(bad), fenced(good)}}
	exec := &fakeExecutor{
		results: map[string]query.Result{good: oneRow()},
		errs:    map[string]error{bad: fmt.Errorf("%w: no such table: customer", query.ErrQueryExecution)},
	}

	a, sessions := newAssistant(gen, exec, nil)
	session := sessions.Create()

	turn, err := a.Ask(context.Background(), session, "list customers")
	require.NoError(t, err)

	assert.Equal(t, good, turn.SQL())
	assert.Equal(t, 1, gen.correctedCalls)
	assert.Equal(t, bad, gen.lastFailedSQL)
	assert.Contains(t, gen.lastDBError, "no such table")
}

func TestAskCorrectionBudgetExhausted(t *testing.T) {
	bad := "SELECT * FROM customer"
	execErr := fmt.Errorf("%w: no such table: customer", query.ErrQueryExecution)
	gen := &fakeSQLGen{replies: []string{fenced(bad), fenced(bad), fenced(bad)}}
	exec := &fakeExecutor{errs: map[string]error{bad: execErr}}

	a, sessions := newAssistant(gen, exec, nil)
	session := sessions.Create()

	_, err := a.Ask(context.Background(), session, "list customers")
	assert.ErrorIs(t, err, query.ErrQueryExecution)

	// Default budget is one correction: initial attempt plus one retry.
	assert.Equal(t, 1, gen.correctedCalls)
	assert.Equal(t, 2, exec.calls)
	assert.Equal(t, 0, session.Manager().Len())
}

func TestAskUnsafeQueryNotCorrected(t *testing.T) {
	gen := &fakeSQLGen{replies: []string{fenced("DROP TABLE customers")}}
	exec := &fakeExecutor{errs: map[string]error{
		"DROP TABLE customers": fmt.Errorf("%w: forbidden keyword", query.ErrUnsafeQuery),
	}}

	a, sessions := newAssistant(gen, exec, nil)
	session := sessions.Create()

	_, err := a.Ask(context.Background(), session, "drop it all")
	assert.ErrorIs(t, err, query.ErrUnsafeQuery)
	assert.Equal(t, 0, gen.correctedCalls)
	assert.Equal(t, 0, session.Manager().Len())
}

func TestAskInsightFailureIsNonFatal(t *testing.T) {
	gen := &fakeSQLGen{replies: []string{fenced("SELECT 1")}}
	exec := &fakeExecutor{results: map[string]query.Result{"SELECT 1": oneRow()}}
	ins := &fakeInsighter{err: fmt.Errorf("%w: rate limited", generator.ErrGeneration)}

	a, sessions := newAssistant(gen, exec, ins)
	session := sessions.Create()

	turn, err := a.Ask(context.Background(), session, "anything?")
	require.NoError(t, err)
	assert.Empty(t, turn.Insight())
	assert.Equal(t, 1, session.Manager().Len())
}

func TestAskRetrieverFailure(t *testing.T) {
	retriever := &fakeRetriever{err: fmt.Errorf("%w: boom", search.ErrEmbeddingService)}
	a := service.NewAssistant(retriever, &fakeSQLGen{}, &fakeExecutor{}, nil, config.NewPipelineConfig(), nil)
	session := service.NewSessionRegistry().Create()

	_, err := a.Ask(context.Background(), session, "anything?")
	assert.ErrorIs(t, err, search.ErrEmbeddingService)
}

func TestAskFailedTurnLeavesHistoryIntact(t *testing.T) {
	good := "SELECT 1"
	gen := &fakeSQLGen{replies: []string{fenced(good), "garbage", "more garbage"}}
	exec := &fakeExecutor{results: map[string]query.Result{good: oneRow()}}

	a, sessions := newAssistant(gen, exec, nil)
	session := sessions.Create()

	_, err := a.Ask(context.Background(), session, "first")
	require.NoError(t, err)

	_, err = a.Ask(context.Background(), session, "second")
	require.Error(t, err)

	assert.Equal(t, 1, session.Manager().Len())
	recent := session.Manager().Recent(10)
	assert.Equal(t, "first", recent[0].Question())
}

func TestSessionRegistry(t *testing.T) {
	registry := service.NewSessionRegistry()

	session := registry.Create()
	assert.NotEmpty(t, session.ID())

	got, err := registry.Get(session.ID())
	require.NoError(t, err)
	assert.Same(t, session, got)

	other := registry.Create()
	assert.NotEqual(t, session.ID(), other.ID())
	assert.Equal(t, 2, registry.Len())

	require.NoError(t, registry.Delete(session.ID()))
	_, err = registry.Get(session.ID())
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	assert.ErrorIs(t, registry.Delete(session.ID()), service.ErrSessionNotFound)
}

func TestSessionHistoriesAreIsolated(t *testing.T) {
	gen := &fakeSQLGen{replies: []string{fenced("SELECT 1"), fenced("SELECT 1")}}
	exec := &fakeExecutor{results: map[string]query.Result{"SELECT 1": oneRow()}}

	a, registry := newAssistant(gen, exec, nil)
	first := registry.Create()
	second := registry.Create()

	_, err := a.Ask(context.Background(), first, "q1")
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), second, "q2")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Manager().Len())
	assert.Equal(t, 1, second.Manager().Len())
	assert.NotEqual(t,
		first.Manager().Recent(1)[0].Question(),
		second.Manager().Recent(1)[0].Question())
}
