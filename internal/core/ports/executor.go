package ports

import (
	"context"
	"time"

	"go.trai.ch/dval/internal/core/domain"
)

// Executor runs work items asynchronously on a bounded pool.
//
//go:generate mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Submit enqueues a work item. It blocks or rejects when the queue is at capacity.
	Submit(ctx context.Context, item *domain.WorkItem) (Handle, error)

	// Shutdown stops accepting work and waits for queued items until ctx is done.
	Shutdown(ctx context.Context) error
}

// Handle tracks a submitted work item.
type Handle interface {
	// ID returns the work item ID.
	ID() uint64

	// Status returns the current lifecycle state.
	Status() domain.WorkStatus

	// Done is closed when the item completes or fails.
	Done() <-chan struct{}

	// Result waits up to timeout for the outcome. A timeout does not cancel the work.
	// A non-positive timeout waits until ctx is done.
	Result(ctx context.Context, timeout time.Duration) (float64, error)
}
