package service

import "errors"

// Sentinel errors for the application services.
var (
	// ErrSessionNotFound indicates the session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("querybuddy: client is closed")
)
