package ports

import (
	"context"

	"go.trai.ch/dval/internal/core/domain"
)

// ResultCache stores utility scores keyed by fingerprint.
//
//go:generate mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks
type ResultCache interface {
	// Get retrieves the entry for a fingerprint.
	// Returns nil, nil on a miss, including when the entry has expired.
	Get(ctx context.Context, fp domain.Fingerprint) (*domain.CacheEntry, error)

	// Put stores an entry. Concurrent writers of the same fingerprint resolve last-writer-wins.
	Put(ctx context.Context, entry domain.CacheEntry) error

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// Fingerprinter derives cache keys from utility calls.
type Fingerprinter interface {
	// Fingerprint returns a key that depends only on the sorted subset, the utility identity and its config.
	Fingerprint(call domain.UtilityCall) domain.Fingerprint
}
