// Package query holds the tabular result type produced by executing a
// generated SQL statement.
package query

// Result is the outcome of one successful query execution. It is produced
// per turn, consumed by the insight generator and the caller, and never
// persisted.
type Result struct {
	columns   []string
	rows      [][]any
	truncated bool
}

// NewResult creates a Result.
func NewResult(columns []string, rows [][]any, truncated bool) Result {
	cols := make([]string, len(columns))
	copy(cols, columns)
	copied := make([][]any, len(rows))
	for i, row := range rows {
		r := make([]any, len(row))
		copy(r, row)
		copied[i] = r
	}
	return Result{
		columns:   cols,
		rows:      copied,
		truncated: truncated,
	}
}

// Columns returns the ordered column names.
func (r Result) Columns() []string {
	cols := make([]string, len(r.columns))
	copy(cols, r.columns)
	return cols
}

// Rows returns the ordered result rows.
func (r Result) Rows() [][]any {
	rows := make([][]any, len(r.rows))
	for i, row := range r.rows {
		cp := make([]any, len(row))
		copy(cp, row)
		rows[i] = cp
	}
	return rows
}

// RowCount returns the number of returned rows.
func (r Result) RowCount() int { return len(r.rows) }

// Truncated reports whether the underlying result exceeded the configured
// row cap.
func (r Result) Truncated() bool { return r.truncated }
