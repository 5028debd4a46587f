package daemon

import (
	"context"
	"errors"
	"sync/atomic"

	"go.trai.ch/dval/internal/adapters/pool"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Executor = (*RemoteExecutor)(nil)

// RemoteExecutor runs work items on dval workers.
// A local pool bounds the number of in-flight calls; each item's runner is replaced by
// an Evaluate RPC sent round-robin to the workers.
type RemoteExecutor struct {
	pool    *pool.Pool
	workers []*Client
	next    atomic.Uint64
}

// NewRemoteExecutor connects to every worker address.
// opts.Workers is the number of concurrent RPCs and defaults to one per worker.
func NewRemoteExecutor(addrs []string, opts pool.Options, dialOpts ...DialOption) (*RemoteExecutor, error) {
	if len(addrs) == 0 {
		return nil, domain.ErrNoWorkers
	}

	workers := make([]*Client, 0, len(addrs))
	for _, addr := range addrs {
		c, err := Dial(addr, dialOpts...)
		if err != nil {
			for _, w := range workers {
				_ = w.Close()
			}
			return nil, err
		}
		workers = append(workers, c)
	}

	if opts.Workers <= 0 {
		opts.Workers = len(workers)
	}
	return &RemoteExecutor{pool: pool.New(opts), workers: workers}, nil
}

// Check checks the evaluator service of every worker.
func (e *RemoteExecutor) Check(ctx context.Context) error {
	var errs []error
	for _, w := range e.workers {
		if err := w.Check(ctx, EvaluatorServiceName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Submit implements ports.Executor. The item's Call is shipped to a worker; Run is not used.
func (e *RemoteExecutor) Submit(ctx context.Context, item *domain.WorkItem) (ports.Handle, error) {
	call := item.Call
	remote := &domain.WorkItem{
		ID:   item.ID,
		Call: call,
		Run: func(ctx context.Context) (float64, error) {
			score, err := e.pick().Evaluate(ctx, call)
			if err != nil {
				return 0, domain.NewEvaluationError(call.UtilityID, call.Subset, err)
			}
			return score, nil
		},
	}

	h, err := e.pool.Submit(ctx, remote)
	if err != nil {
		return nil, err
	}
	item.ID = remote.ID
	return h, nil
}

// Shutdown drains in-flight calls and closes the worker connections.
func (e *RemoteExecutor) Shutdown(ctx context.Context) error {
	errs := []error{e.pool.Shutdown(ctx)}
	for _, w := range e.workers {
		if err := w.Close(); err != nil {
			errs = append(errs, zerr.With(zerr.Wrap(err, "failed to close worker connection"), "address", w.Addr()))
		}
	}
	return errors.Join(errs...)
}

// Workers returns the worker addresses.
func (e *RemoteExecutor) Workers() []string {
	out := make([]string, len(e.workers))
	for i, w := range e.workers {
		out[i] = w.Addr()
	}
	return out
}

func (e *RemoteExecutor) pick() *Client {
	n := e.next.Add(1) - 1
	return e.workers[n%uint64(len(e.workers))]
}
