package query

import "time"

// Record is one completed query execution in the audit log. Unlike
// Result it carries no row data, only what is needed to reconstruct
// what ran and how much it returned.
type Record struct {
	sessionID string
	question  string
	sql       string
	rowCount  int
	truncated bool
	duration  time.Duration
	createdAt time.Time
}

// NewRecord creates a Record.
func NewRecord(sessionID, question, sql string, rowCount int, truncated bool, duration time.Duration, createdAt time.Time) Record {
	return Record{
		sessionID: sessionID,
		question:  question,
		sql:       sql,
		rowCount:  rowCount,
		truncated: truncated,
		duration:  duration,
		createdAt: createdAt,
	}
}

// SessionID returns the session the query ran in.
func (r Record) SessionID() string { return r.sessionID }

// Question returns the natural-language question.
func (r Record) Question() string { return r.question }

// SQL returns the executed SQL statement.
func (r Record) SQL() string { return r.sql }

// RowCount returns the number of rows the query returned.
func (r Record) RowCount() int { return r.rowCount }

// Truncated reports whether the result hit the row cap.
func (r Record) Truncated() bool { return r.truncated }

// Duration returns how long the turn took end to end.
func (r Record) Duration() time.Duration { return r.duration }

// CreatedAt returns when the query completed.
func (r Record) CreatedAt() time.Time { return r.createdAt }
