package ports

import (
	"context"
	"time"
)

// Metrics records counters about cache and evaluation activity.
//
//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks
type Metrics interface {
	// CacheLookup records a cache lookup outcome: "hit", "miss" or "error".
	CacheLookup(ctx context.Context, outcome string)

	// Evaluation records one utility evaluation and whether it failed.
	Evaluation(ctx context.Context, elapsed time.Duration, err error)
}
