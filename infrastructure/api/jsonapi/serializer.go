package jsonapi

import (
	"strconv"
	"time"

	"github.com/querybuddy/querybuddy/domain/conversation"
)

// SessionAttributes represents session attributes in JSON:API format.
type SessionAttributes struct {
	CreatedAt time.Time `json:"created_at"`
	Turns     int       `json:"turns"`
	TotalRows int       `json:"total_rows"`
}

// TurnAttributes represents a completed turn in JSON:API format.
type TurnAttributes struct {
	Question    string    `json:"question"`
	SQL         string    `json:"sql"`
	Explanation string    `json:"explanation,omitempty"`
	Insight     string    `json:"insight,omitempty"`
	Columns     []string  `json:"columns"`
	Rows        [][]any   `json:"rows"`
	RowCount    int       `json:"row_count"`
	Truncated   bool      `json:"truncated"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionResource builds a session resource.
func SessionResource(id string, createdAt time.Time, summary conversation.Summary) *Resource {
	return NewResource("session", id, SessionAttributes{
		CreatedAt: createdAt,
		Turns:     summary.Turns(),
		TotalRows: summary.TotalRows(),
	})
}

// TurnResource builds a turn resource. The turn's index within its
// conversation serves as the resource ID.
func TurnResource(turn conversation.Turn) *Resource {
	result := turn.Result()
	return NewResource("turn", strconv.Itoa(turn.Index()), TurnAttributes{
		Question:    turn.Question(),
		SQL:         turn.SQL(),
		Explanation: turn.Explanation(),
		Insight:     turn.Insight(),
		Columns:     result.Columns(),
		Rows:        result.Rows(),
		RowCount:    result.RowCount(),
		Truncated:   result.Truncated(),
		CreatedAt:   turn.CreatedAt(),
	})
}

// TurnListResponse builds a list document for a conversation history.
func TurnListResponse(turns []conversation.Turn) *Document {
	resources := make([]*Resource, len(turns))
	for i, turn := range turns {
		resources[i] = TurnResource(turn)
	}
	return NewListResponse(resources)
}
