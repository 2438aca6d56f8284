package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/internal/database"
	"github.com/querybuddy/querybuddy/internal/log"
)

// Executor validates and runs SQL against the target database.
type Executor struct {
	db      database.Database
	policy  Policy
	timeout time.Duration
	logger  *log.Logger
}

// NewExecutor creates an Executor. timeout bounds one query's execution;
// zero disables the bound.
func NewExecutor(db database.Database, policy Policy, timeout time.Duration, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		db:      db,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
	}
}

// Policy returns the safety policy in use.
func (e *Executor) Policy() Policy { return e.policy }

// Execute validates the SQL and runs it, returning at most the policy's
// row cap. Result.Truncated reports whether more rows existed. Validation
// failures return before any database work happens.
func (e *Executor) Execute(ctx context.Context, sql string) (query.Result, error) {
	safe, err := e.policy.Validate(sql)
	if err != nil {
		return query.Result{}, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := e.run(ctx, safe)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return query.Result{}, fmt.Errorf("%w after %s", query.ErrQueryTimeout, e.timeout)
		}
		return query.Result{}, fmt.Errorf("%w: %w", query.ErrQueryExecution, err)
	}

	e.logger.DebugContext(ctx, "query executed",
		"rows", result.RowCount(),
		"truncated", result.Truncated(),
		"duration", time.Since(started),
	)
	return result, nil
}

func (e *Executor) run(ctx context.Context, sql string) (query.Result, error) {
	rows, err := e.db.Session(ctx).Raw(sql).Rows()
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, err
	}

	rowCap := e.policy.RowCap()
	var data [][]any
	truncated := false

	for rows.Next() {
		// One extra row past the cap proves truncation without reading
		// the rest of the result set.
		if rowCap > 0 && len(data) >= rowCap {
			truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return query.Result{}, err
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}

	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}

	return query.NewResult(columns, data, truncated), nil
}
