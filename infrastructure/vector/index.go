// Package vector maintains the embedding index over schema fragments and
// answers top-k retrieval queries for question relevance.
package vector

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/querybuddy/querybuddy/domain/schema"
	"github.com/querybuddy/querybuddy/domain/search"
	"github.com/querybuddy/querybuddy/infrastructure/provider"
	"github.com/querybuddy/querybuddy/internal/database"
	"github.com/querybuddy/querybuddy/internal/log"
)

// embedParallelism bounds concurrent embedding API calls during Build.
const embedParallelism = 4

// Float64Slice stores a []float64 as JSON in the cache table.
type Float64Slice []float64

// Scan implements sql.Scanner.
func (f *Float64Slice) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float64Slice", value)
	}

	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

// CachedEmbedding is one cached fragment embedding, keyed by fragment ID
// and invalidated via the content hash.
type CachedEmbedding struct {
	ID          int64        `gorm:"column:id;primaryKey;autoIncrement"`
	FragmentID  string       `gorm:"column:fragment_id;uniqueIndex"`
	ContentHash string       `gorm:"column:content_hash"`
	Embedding   Float64Slice `gorm:"column:embedding;type:json"`
}

// TableName sets the cache table name.
func (CachedEmbedding) TableName() string { return "schema_embeddings" }

// Index owns the in-memory vector index over the current schema fragments.
// Build replaces the index wholesale; Retrieve reads it under a shared
// lock, so retrieval stays consistent during a rebuild.
type Index struct {
	store    database.Database
	embedder provider.Embedder
	budget   search.TokenBudget
	logger   *log.Logger

	mu        sync.RWMutex
	vectors   []search.StoredVector
	fragments map[string]schema.Fragment
}

// NewIndex creates an Index backed by the given application store.
func NewIndex(store database.Database, embedder provider.Embedder, logger *log.Logger) *Index {
	if logger == nil {
		logger = log.Default()
	}
	return &Index{
		store:     store,
		embedder:  embedder,
		budget:    search.DefaultTokenBudget(),
		logger:    logger,
		fragments: map[string]schema.Fragment{},
	}
}

// Migrate creates the embedding cache table.
func (idx *Index) Migrate() error {
	return idx.store.AutoMigrate(&CachedEmbedding{})
}

// Len returns the number of indexed fragments.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Build embeds the given fragments and swaps them in as the new index.
// Fragments whose content hash matches a cached embedding are not
// re-embedded. The previous index stays live until the new one is ready.
func (idx *Index) Build(ctx context.Context, fragments []schema.Fragment) error {
	cached, err := idx.loadCache(ctx)
	if err != nil {
		return fmt.Errorf("load embedding cache: %w", err)
	}

	var toEmbed []schema.Fragment
	vectors := make(map[string][]float64, len(fragments))
	for _, f := range fragments {
		if entry, ok := cached[f.ID()]; ok && entry.ContentHash == f.ContentHash() {
			vectors[f.ID()] = entry.Embedding
			continue
		}
		toEmbed = append(toEmbed, f)
	}

	if len(toEmbed) > 0 {
		embedded, err := idx.embedFragments(ctx, toEmbed)
		if err != nil {
			return err
		}
		for id, vec := range embedded {
			vectors[id] = vec
		}
		if err := idx.saveCache(ctx, toEmbed, embedded); err != nil {
			return fmt.Errorf("save embedding cache: %w", err)
		}
	}

	if err := idx.purgeCache(ctx, fragments); err != nil {
		return fmt.Errorf("purge embedding cache: %w", err)
	}

	idx.logger.InfoContext(ctx, "vector index built",
		"fragments", len(fragments),
		"embedded", len(toEmbed),
		"cached", len(fragments)-len(toEmbed),
	)

	stored := make([]search.StoredVector, 0, len(fragments))
	byID := make(map[string]schema.Fragment, len(fragments))
	for _, f := range fragments {
		vec, ok := vectors[f.ID()]
		if !ok {
			return fmt.Errorf("missing embedding for fragment %s", f.ID())
		}
		stored = append(stored, search.NewStoredVector(f.ID(), vec))
		byID[f.ID()] = f
	}

	idx.mu.Lock()
	idx.vectors = stored
	idx.fragments = byID
	idx.mu.Unlock()
	return nil
}

// embedFragments embeds fragment texts in bounded parallel batches,
// preserving the fragment-to-vector mapping by ID. Batch boundaries come
// from the token budget, so oversized fragments are truncated rather than
// rejected by the embedding model.
func (idx *Index) embedFragments(ctx context.Context, fragments []schema.Fragment) (map[string][]float64, error) {
	documents := make([]search.Document, len(fragments))
	for i, f := range fragments {
		documents[i] = search.NewDocument(f.ID(), f.Text())
	}

	embedded := make(map[string][]float64, len(fragments))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedParallelism)

	for _, batch := range idx.budget.Batches(documents) {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, d := range batch {
				texts[i] = idx.budget.Truncate(d.Text())
			}
			resp, err := idx.embedder.Embed(gctx, provider.NewEmbeddingRequest(texts))
			if err != nil {
				return fmt.Errorf("%w: %w", search.ErrEmbeddingService, err)
			}
			if len(resp.Embeddings()) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d fragments",
					search.ErrEmbeddingService, len(resp.Embeddings()), len(batch))
			}
			mu.Lock()
			for i, d := range batch {
				embedded[d.FragmentID()] = resp.Embeddings()[i]
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embedded, nil
}

func (idx *Index) loadCache(ctx context.Context) (map[string]CachedEmbedding, error) {
	var entries []CachedEmbedding
	if err := idx.store.Session(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}

	cached := make(map[string]CachedEmbedding, len(entries))
	for _, e := range entries {
		cached[e.FragmentID] = e
	}
	return cached, nil
}

// saveCache upserts the freshly embedded fragments in one transaction.
func (idx *Index) saveCache(ctx context.Context, fragments []schema.Fragment, embedded map[string][]float64) error {
	return database.WithTransaction(ctx, idx.store, func(tx *gorm.DB) error {
		for _, f := range fragments {
			vec := embedded[f.ID()]
			entry := CachedEmbedding{
				FragmentID:  f.ID(),
				ContentHash: f.ContentHash(),
				Embedding:   Float64Slice(vec),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "fragment_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"content_hash", "embedding"}),
			}).Create(&entry).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// purgeCache drops cached embeddings for fragments that no longer exist,
// for example after a table was dropped or renamed.
func (idx *Index) purgeCache(ctx context.Context, fragments []schema.Fragment) error {
	if len(fragments) == 0 {
		return idx.store.Session(ctx).Where("1 = 1").Delete(&CachedEmbedding{}).Error
	}

	ids := make([]string, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID()
	}
	return idx.store.Session(ctx).Where("fragment_id NOT IN ?", ids).Delete(&CachedEmbedding{}).Error
}

// Retrieve returns the k fragments most similar to the question, highest
// similarity first. An unbuilt or empty index returns an empty slice.
func (idx *Index) Retrieve(ctx context.Context, question string, k int) ([]schema.Fragment, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", search.ErrInvalidArgument, k)
	}

	idx.mu.RLock()
	vectors := idx.vectors
	fragments := idx.fragments
	idx.mu.RUnlock()

	if len(vectors) == 0 {
		return []schema.Fragment{}, nil
	}

	resp, err := idx.embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{question}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrEmbeddingService, err)
	}
	if len(resp.Embeddings()) == 0 {
		return nil, fmt.Errorf("%w: empty embedding for question", search.ErrEmbeddingService)
	}

	matches := search.TopKSimilar(resp.Embeddings()[0], vectors, k)

	result := make([]schema.Fragment, 0, len(matches))
	for _, m := range matches {
		if f, ok := fragments[m.FragmentID()]; ok {
			result = append(result, f)
		}
	}
	return result, nil
}
