package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/querybuddy/querybuddy/domain/conversation"
)

// Session binds a conversation history to an ID handed out to callers.
type Session struct {
	id        string
	createdAt time.Time
	manager   *conversation.Manager
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Manager returns the session's conversation history.
func (s *Session) Manager() *conversation.Manager { return s.manager }

// SessionRegistry tracks live sessions. Sessions are held in memory only
// and disappear on process exit.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Create registers a new session with a fresh conversation history.
func (r *SessionRegistry) Create() *Session {
	session := &Session{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		manager:   conversation.NewManager(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.id] = session
	return session
}

// Get returns the session with the given ID.
func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session with the given ID.
func (r *SessionRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
