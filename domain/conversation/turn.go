// Package conversation holds the per-session conversation history used to
// ground follow-up questions.
package conversation

import (
	"time"

	"github.com/querybuddy/querybuddy/domain/query"
)

// Turn is one completed question/answer cycle: the question, the SQL that
// passed the safety policy and executed, the result, and the optional
// insight narrative.
type Turn struct {
	index       int
	question    string
	sql         string
	explanation string
	result      query.Result
	insight     string
	createdAt   time.Time
}

// NewTurn creates a Turn. The index is assigned by the Manager on append.
func NewTurn(question, sql, explanation string, result query.Result, insight string) Turn {
	return Turn{
		question:    question,
		sql:         sql,
		explanation: explanation,
		result:      result,
		insight:     insight,
		createdAt:   time.Now().UTC(),
	}
}

// Index returns the turn's position in the conversation, starting at 0.
func (t Turn) Index() int { return t.index }

// Question returns the user's natural-language question.
func (t Turn) Question() string { return t.question }

// SQL returns the executed SQL statement.
func (t Turn) SQL() string { return t.sql }

// Explanation returns the model's plain-language explanation of the SQL.
func (t Turn) Explanation() string { return t.explanation }

// Result returns the execution result.
func (t Turn) Result() query.Result { return t.result }

// Insight returns the generated insight text, empty when insight
// generation failed or was skipped.
func (t Turn) Insight() string { return t.insight }

// CreatedAt returns when the turn completed.
func (t Turn) CreatedAt() time.Time { return t.createdAt }
