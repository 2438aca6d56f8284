// Package auditlog persists a log of executed queries in the application
// database.
package auditlog

import (
	"context"
	"time"

	"github.com/querybuddy/querybuddy/domain/query"
	"github.com/querybuddy/querybuddy/internal/database"
)

// recordEntity is the database model for one audit log entry.
type recordEntity struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID  string    `gorm:"column:session_id;index"`
	Question   string    `gorm:"column:question"`
	SQLText    string    `gorm:"column:sql_text"`
	RowCount   int       `gorm:"column:row_count"`
	Truncated  bool      `gorm:"column:truncated"`
	DurationMS int64     `gorm:"column:duration_ms"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName sets the audit log table name.
func (recordEntity) TableName() string { return "query_log" }

// recordMapper converts between query.Record and recordEntity.
type recordMapper struct{}

func (recordMapper) ToDomain(e recordEntity) query.Record {
	return query.NewRecord(
		e.SessionID,
		e.Question,
		e.SQLText,
		e.RowCount,
		e.Truncated,
		time.Duration(e.DurationMS)*time.Millisecond,
		e.CreatedAt,
	)
}

func (recordMapper) ToModel(d query.Record) recordEntity {
	return recordEntity{
		SessionID:  d.SessionID(),
		Question:   d.Question(),
		SQLText:    d.SQL(),
		RowCount:   d.RowCount(),
		Truncated:  d.Truncated(),
		DurationMS: d.Duration().Milliseconds(),
		CreatedAt:  d.CreatedAt(),
	}
}

// Store appends and reads audit log entries.
type Store struct {
	db   database.Database
	repo database.Repository[query.Record, recordEntity]
}

// NewStore creates a Store backed by the given application database.
func NewStore(db database.Database) *Store {
	return &Store{
		db:   db,
		repo: database.NewRepository[query.Record, recordEntity](db, recordMapper{}, "query log record"),
	}
}

// Migrate creates the audit log table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&recordEntity{})
}

// Append persists one completed query.
func (s *Store) Append(ctx context.Context, rec query.Record) error {
	return s.repo.Save(ctx, rec)
}

// Recent returns the most recent entries across all sessions, newest
// first.
func (s *Store) Recent(ctx context.Context, limit int) ([]query.Record, error) {
	q := database.NewQuery().OrderDesc("created_at").OrderDesc("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.repo.Find(ctx, q)
}

// BySession returns the entries for one session, newest first.
func (s *Store) BySession(ctx context.Context, sessionID string, limit int) ([]query.Record, error) {
	q := database.NewQuery().Equal("session_id", sessionID).OrderDesc("created_at").OrderDesc("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.repo.Find(ctx, q)
}

// Count returns the total number of logged queries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx, database.NewQuery())
}
