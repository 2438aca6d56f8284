// Package search provides vector similarity primitives for schema
// fragment retrieval.
package search

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical).
// Returns 0 if either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Match holds a fragment ID and its similarity score.
type Match struct {
	fragmentID string
	similarity float64
}

// NewMatch creates a Match.
func NewMatch(fragmentID string, similarity float64) Match {
	return Match{
		fragmentID: fragmentID,
		similarity: similarity,
	}
}

// FragmentID returns the fragment identifier.
func (m Match) FragmentID() string { return m.fragmentID }

// Similarity returns the similarity score.
func (m Match) Similarity() float64 { return m.similarity }

// StoredVector holds an embedding vector with its fragment ID.
type StoredVector struct {
	fragmentID string
	embedding  []float64
}

// NewStoredVector creates a StoredVector.
func NewStoredVector(fragmentID string, embedding []float64) StoredVector {
	vec := make([]float64, len(embedding))
	copy(vec, embedding)
	return StoredVector{
		fragmentID: fragmentID,
		embedding:  vec,
	}
}

// FragmentID returns the fragment identifier.
func (v StoredVector) FragmentID() string { return v.fragmentID }

// Embedding returns the embedding vector (copy).
func (v StoredVector) Embedding() []float64 {
	result := make([]float64, len(v.embedding))
	copy(result, v.embedding)
	return result
}

// TopKSimilar finds the top-k most similar vectors to the query, sorted by
// similarity descending. Ties keep the vectors' original order, so retrieval
// is deterministic for identical inputs.
func TopKSimilar(query []float64, vectors []StoredVector, k int) []Match {
	if len(vectors) == 0 || k <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, len(vectors))
	for _, v := range vectors {
		matches = append(matches, NewMatch(v.fragmentID, CosineSimilarity(query, v.embedding)))
	}

	// Stable sort: equal similarities preserve original fragment order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].similarity > matches[j].similarity
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}
