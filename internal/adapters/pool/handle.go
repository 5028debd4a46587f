package pool

import (
	"context"
	"sync"
	"time"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Handle = (*Handle)(nil)

// Handle tracks one submitted work item.
type Handle struct {
	id   uint64
	item *domain.WorkItem
	ctx  context.Context //nolint:containedctx // the submitter's context governs the item's execution

	mu     sync.Mutex
	status domain.WorkStatus
	score  float64
	err    error
	done   chan struct{}
}

func newHandle(ctx context.Context, item *domain.WorkItem) *Handle {
	return &Handle{
		id:     item.ID,
		item:   item,
		ctx:    ctx,
		status: domain.WorkPending,
		done:   make(chan struct{}),
	}
}

// ID returns the work item ID.
func (h *Handle) ID() uint64 {
	return h.id
}

// Status returns the current lifecycle state.
func (h *Handle) Status() domain.WorkStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done is closed once the item has completed or failed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result waits up to timeout for the outcome.
// On timeout it returns ErrTimeout; the item keeps running and its eventual result stays on the handle.
func (h *Handle) Result(ctx context.Context, timeout time.Duration) (float64, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.score, h.err
	case <-expired:
		return 0, zerr.With(zerr.With(zerr.Wrap(domain.ErrTimeout, "result not ready"),
			"work_item", h.id), "timeout", timeout.String())
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Handle) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = domain.WorkRunning
}

func (h *Handle) complete(score float64, err error) {
	h.mu.Lock()
	h.score = score
	h.err = err
	if err != nil {
		h.status = domain.WorkFailed
	} else {
		h.status = domain.WorkCompleted
	}
	h.mu.Unlock()
	close(h.done)
}
