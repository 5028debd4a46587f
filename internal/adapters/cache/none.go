package cache

import (
	"context"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
)

var _ ports.ResultCache = None{}

// None is a cache that stores nothing and always misses.
type None struct{}

// Get always misses.
func (None) Get(context.Context, domain.Fingerprint) (*domain.CacheEntry, error) {
	return nil, nil
}

// Put discards the entry.
func (None) Put(context.Context, domain.CacheEntry) error {
	return nil
}

// Clear is a no-op.
func (None) Clear(context.Context) error {
	return nil
}
