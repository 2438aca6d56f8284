package vector_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"github.com/querybuddy/querybuddy/domain/schema"
	"github.com/querybuddy/querybuddy/domain/search"
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/infrastructure/vector"
	"github.com/querybuddy/querybuddy/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbed derives a deterministic 8-dimensional vector from text, so
// identical texts always embed identically.
func hashEmbed(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, 8)
	for i := range vec {
		vec[i] = float64(sum[i]) / 255.0
	}
	return vec
}

type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	textsSeen int
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, req provider.EmbeddingRequest) (provider.EmbeddingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return provider.EmbeddingResponse{}, f.err
	}
	f.calls++
	texts := req.Texts()
	f.textsSeen += len(texts)
	embeddings := make([][]float64, len(texts))
	for i, t := range texts {
		embeddings[i] = hashEmbed(t)
	}
	return provider.NewEmbeddingResponse(embeddings, provider.NewUsage(0, 0, 0)), nil
}

func (f *fakeEmbedder) SupportsEmbedding() bool { return true }

func (f *fakeEmbedder) stats() (calls, texts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.textsSeen
}

func fragment(name string) schema.Fragment {
	return schema.NewFragment(name, []schema.Column{
		schema.NewColumn("id", "INTEGER", false, true),
	}, nil)
}

func newIndex(t *testing.T, embedder provider.Embedder) *vector.Index {
	t.Helper()
	idx := vector.NewIndex(testdb.NewPlain(t), embedder, nil)
	require.NoError(t, idx.Migrate())
	return idx
}

func TestBuildAndRetrieve(t *testing.T) {
	embedder := &fakeEmbedder{}
	idx := newIndex(t, embedder)

	customers := fragment("customers")
	orders := fragment("orders")
	require.NoError(t, idx.Build(context.Background(), []schema.Fragment{customers, orders}))
	assert.Equal(t, 2, idx.Len())

	// A question identical to a fragment's text embeds to the same vector,
	// so it must rank first.
	got, err := idx.Retrieve(context.Background(), orders.Text(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "table:orders", got[0].ID())
}

func TestBuildUsesEmbeddingCache(t *testing.T) {
	embedder := &fakeEmbedder{}
	idx := newIndex(t, embedder)

	fragments := []schema.Fragment{fragment("customers"), fragment("orders")}
	require.NoError(t, idx.Build(context.Background(), fragments))
	_, texts := embedder.stats()
	assert.Equal(t, 2, texts)

	// Unchanged fragments are served from cache.
	require.NoError(t, idx.Build(context.Background(), fragments))
	_, texts = embedder.stats()
	assert.Equal(t, 2, texts)

	// A changed fragment is re-embedded; the other stays cached.
	changed := fragments[0].WithSamples("  id=1")
	require.NoError(t, idx.Build(context.Background(), []schema.Fragment{changed, fragments[1]}))
	_, texts = embedder.stats()
	assert.Equal(t, 3, texts)
}

func TestCacheSurvivesIndexRestart(t *testing.T) {
	embedder := &fakeEmbedder{}
	db := testdb.NewPlain(t)

	idx := vector.NewIndex(db, embedder, nil)
	require.NoError(t, idx.Migrate())
	fragments := []schema.Fragment{fragment("customers")}
	require.NoError(t, idx.Build(context.Background(), fragments))

	// A fresh Index over the same store reuses the persisted cache.
	idx2 := vector.NewIndex(db, embedder, nil)
	require.NoError(t, idx2.Migrate())
	require.NoError(t, idx2.Build(context.Background(), fragments))

	_, texts := embedder.stats()
	assert.Equal(t, 1, texts)
}

func TestRetrieveInvalidK(t *testing.T) {
	idx := newIndex(t, &fakeEmbedder{})

	_, err := idx.Retrieve(context.Background(), "question", 0)
	assert.ErrorIs(t, err, search.ErrInvalidArgument)

	_, err = idx.Retrieve(context.Background(), "question", -1)
	assert.ErrorIs(t, err, search.ErrInvalidArgument)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	idx := newIndex(t, &fakeEmbedder{})

	got, err := idx.Retrieve(context.Background(), "question", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveKLargerThanIndex(t *testing.T) {
	embedder := &fakeEmbedder{}
	idx := newIndex(t, embedder)

	require.NoError(t, idx.Build(context.Background(), []schema.Fragment{fragment("customers")}))

	got, err := idx.Retrieve(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBuildEmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("rate limited")}
	idx := newIndex(t, embedder)

	err := idx.Build(context.Background(), []schema.Fragment{fragment("customers")})
	assert.ErrorIs(t, err, search.ErrEmbeddingService)
	assert.Equal(t, 0, idx.Len())
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{}
	idx := newIndex(t, embedder)
	require.NoError(t, idx.Build(context.Background(), []schema.Fragment{fragment("customers")}))

	embedder.mu.Lock()
	embedder.err = errors.New("rate limited")
	embedder.mu.Unlock()

	_, err := idx.Retrieve(context.Background(), "question", 1)
	assert.ErrorIs(t, err, search.ErrEmbeddingService)
}

func TestBuildPurgesDroppedFragments(t *testing.T) {
	embedder := &fakeEmbedder{}
	idx := newIndex(t, embedder)
	ctx := context.Background()

	customers := fragment("customers")
	orders := fragment("orders")
	require.NoError(t, idx.Build(ctx, []schema.Fragment{customers, orders}))
	_, texts := embedder.stats()
	require.Equal(t, 2, texts)

	// The orders table goes away; its cached embedding must go with it.
	require.NoError(t, idx.Build(ctx, []schema.Fragment{customers}))
	assert.Equal(t, 1, idx.Len())

	// When it comes back it is re-embedded instead of served stale.
	require.NoError(t, idx.Build(ctx, []schema.Fragment{customers, orders}))
	_, texts = embedder.stats()
	assert.Equal(t, 3, texts)
}
