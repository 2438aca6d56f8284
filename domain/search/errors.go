package search

import "errors"

// Sentinel errors for retrieval.
var (
	// ErrEmbeddingService indicates the embedding provider failed after
	// retries.
	ErrEmbeddingService = errors.New("embedding service unavailable")

	// ErrInvalidArgument indicates a caller-supplied retrieval parameter
	// is out of range.
	ErrInvalidArgument = errors.New("invalid argument")
)
