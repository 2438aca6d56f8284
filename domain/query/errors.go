package query

import "errors"

// Sentinel errors for query validation and execution.
var (
	// ErrUnsafeQuery indicates the SQL failed the read-only safety policy.
	// Queries rejected with this error never reach the database.
	ErrUnsafeQuery = errors.New("query rejected by safety policy")

	// ErrQueryTimeout indicates execution exceeded the configured timeout.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrQueryExecution indicates the database rejected or failed the
	// query.
	ErrQueryExecution = errors.New("query execution failed")
)
