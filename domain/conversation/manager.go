package conversation

import (
	"fmt"
	"strings"
	"sync"
)

// Manager owns one session's ordered, append-only conversation history.
// One Manager exists per user session; instances never share state.
type Manager struct {
	mu    sync.Mutex
	turns []Turn
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Append adds a completed turn to the history and assigns its index.
func (m *Manager) Append(turn Turn) Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	turn.index = len(m.turns)
	m.turns = append(m.turns, turn)
	return turn
}

// Recent returns the last n turns in conversation order, most-recent-last.
// n larger than the history returns everything; n <= 0 returns an empty
// slice.
func (m *Manager) Recent(n int) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		return []Turn{}
	}
	if n > len(m.turns) {
		n = len(m.turns)
	}
	recent := make([]Turn, n)
	copy(recent, m.turns[len(m.turns)-n:])
	return recent
}

// Len returns the number of turns recorded.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Clear removes all history.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// Summary aggregates the conversation so far.
type Summary struct {
	turns     int
	totalRows int
}

// Turns returns the number of completed turns.
func (s Summary) Turns() int { return s.turns }

// TotalRows returns the sum of row counts across all turns.
func (s Summary) TotalRows() int { return s.totalRows }

// Summary returns aggregate statistics for the session.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Summary{turns: len(m.turns)}
	for _, t := range m.turns {
		s.totalRows += t.result.RowCount()
	}
	return s
}

// PromptContext renders the last n turns in the compact form included in
// generation prompts, so pronouns in follow-up questions resolve against
// earlier results.
func (m *Manager) PromptContext(n int) string {
	recent := m.Recent(n)
	if len(recent) == 0 {
		return "No previous conversation context."
	}

	var b strings.Builder
	b.WriteString("Recent Conversation Context:")
	for i, turn := range recent {
		fmt.Fprintf(&b, "\n%d. Q: %s", i+1, turn.question)
		fmt.Fprintf(&b, "\n   SQL: %s", turn.sql)
		if turn.result.RowCount() > 0 {
			fmt.Fprintf(&b, "\n   Results: %d rows", turn.result.RowCount())
		}
	}
	return b.String()
}
