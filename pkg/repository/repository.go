package repository

import (
	"context"

	"github.com/smallbiznis/invoicepay/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic GORM-backed reader for filtered, paged listings.
// Writes that carry invariants go through the domain repositories instead.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

// Find matches the non-zero fields of query, then applies opts in order.
func (r *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	stmt := r.db.WithContext(ctx).Where(query)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var result []*T
	if err := stmt.Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
