package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound indicates the requested entity was not found.
var ErrNotFound = errors.New("entity not found")

// EntityMapper maps between domain and database model types.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) D
	ToModel(domain D) E
}

// Repository provides generic persistence operations for database entities
// using Query-based filtering.
type Repository[D any, E any] struct {
	db     Database
	mapper EntityMapper[D, E]
	label  string
}

// NewRepository creates a new Repository. The label names the entity in
// error messages.
func NewRepository[D any, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{
		db:     db,
		mapper: mapper,
		label:  label,
	}
}

// Find retrieves entities matching the given query.
func (r Repository[D, E]) Find(ctx context.Context, q Query) ([]D, error) {
	var entities []E
	result := q.Apply(r.db.Session(ctx).Model(new(E))).Find(&entities)
	if result.Error != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, result.Error)
	}

	domains := make([]D, len(entities))
	for i, entity := range entities {
		domains[i] = r.mapper.ToDomain(entity)
	}
	return domains, nil
}

// FindOne retrieves a single entity matching the given query.
func (r Repository[D, E]) FindOne(ctx context.Context, q Query) (D, error) {
	var entity E
	result := q.Apply(r.db.Session(ctx)).First(&entity)
	if result.Error != nil {
		var zero D
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return zero, fmt.Errorf("%w: %s", ErrNotFound, r.label)
		}
		return zero, fmt.Errorf("find one %s: %w", r.label, result.Error)
	}
	return r.mapper.ToDomain(entity), nil
}

// Save upserts the given domain object.
func (r Repository[D, E]) Save(ctx context.Context, domain D) error {
	entity := r.mapper.ToModel(domain)
	if result := r.db.Session(ctx).Save(&entity); result.Error != nil {
		return fmt.Errorf("save %s: %w", r.label, result.Error)
	}
	return nil
}

// Exists checks if any entity matches the given query.
func (r Repository[D, E]) Exists(ctx context.Context, q Query) (bool, error) {
	count, err := r.Count(ctx, q)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Count returns the number of entities matching the given query.
func (r Repository[D, E]) Count(ctx context.Context, q Query) (int64, error) {
	var count int64
	result := q.Apply(r.db.Session(ctx).Model(new(E))).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, result.Error)
	}
	return count, nil
}

// DeleteBy removes entities matching the given query.
func (r Repository[D, E]) DeleteBy(ctx context.Context, q Query) error {
	result := q.Apply(r.db.Session(ctx)).Delete(new(E))
	if result.Error != nil {
		return fmt.Errorf("delete %s: %w", r.label, result.Error)
	}
	return nil
}

// DB returns a GORM session for operations outside the generic surface.
func (r Repository[D, E]) DB(ctx context.Context) *gorm.DB {
	return r.db.Session(ctx)
}

// Mapper returns the entity mapper for external use.
func (r Repository[D, E]) Mapper() EntityMapper[D, E] {
	return r.mapper
}
