package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ResultCache = (*Guard)(nil)

// GuardOptions tunes a Guard.
type GuardOptions struct {
	// OpTimeout bounds every backend operation.
	OpTimeout time.Duration
	// Cooldown is how long the backend is bypassed after a failure before it is tried again.
	Cooldown time.Duration
}

// Guard wraps a cache backend so that its failures degrade to misses.
// Every operation is bounded by OpTimeout even if the backend ignores its context.
// After a failure the backend is skipped for Cooldown; a single degradation event is
// logged per outage and a recovery event once the backend answers again.
type Guard struct {
	backend ports.ResultCache
	logger  ports.Logger
	opts    GuardOptions

	mu       sync.Mutex
	degraded bool
	retryAt  time.Time

	degradations atomic.Int64
	failures     atomic.Int64
}

// NewGuard wraps backend. Zero options fall back to the package defaults.
func NewGuard(backend ports.ResultCache, logger ports.Logger, opts GuardOptions) *Guard {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = domain.DefaultCacheOpTimeout
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = domain.DefaultCacheCooldown
	}
	return &Guard{backend: backend, logger: logger, opts: opts}
}

// Get returns the backend entry, or a miss if the backend is degraded or fails.
func (g *Guard) Get(ctx context.Context, fp domain.Fingerprint) (*domain.CacheEntry, error) {
	if g.bypassed() {
		return nil, nil
	}

	var entry *domain.CacheEntry
	err := g.do(ctx, func(ctx context.Context) error {
		var err error
		entry, err = g.backend.Get(ctx, fp)
		return err
	})
	if err != nil {
		g.fail(ctx, err)
		return nil, nil
	}
	g.succeed()
	return entry, nil
}

// Put stores the entry unless the backend is degraded. Failures are absorbed.
func (g *Guard) Put(ctx context.Context, entry domain.CacheEntry) error {
	if g.bypassed() {
		return nil
	}

	err := g.do(ctx, func(ctx context.Context) error {
		return g.backend.Put(ctx, entry)
	})
	if err != nil {
		g.fail(ctx, err)
		return nil
	}
	g.succeed()
	return nil
}

// Clear forwards to the backend. Unlike lookups, a failed clear is reported to the caller.
func (g *Guard) Clear(ctx context.Context) error {
	err := g.do(ctx, g.backend.Clear)
	if err != nil {
		return zerr.Wrap(err, domain.ErrCacheUnavailable.Error())
	}
	return nil
}

// Close closes the backend if it holds resources.
func (g *Guard) Close() error {
	if c, ok := g.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Backend returns the wrapped cache.
func (g *Guard) Backend() ports.ResultCache {
	return g.backend
}

// Degraded reports whether the backend is currently bypassed.
func (g *Guard) Degraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}

// Degradations returns how many outages have been observed.
func (g *Guard) Degradations() int64 {
	return g.degradations.Load()
}

// Failures returns how many backend operations failed.
func (g *Guard) Failures() int64 {
	return g.failures.Load()
}

func (g *Guard) do(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zerr.With(zerr.Wrap(ctx.Err(), "cache operation timed out"), "timeout", g.opts.OpTimeout.String())
		}
		return ctx.Err()
	}
}

func (g *Guard) bypassed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded && time.Now().Before(g.retryAt)
}

func (g *Guard) fail(ctx context.Context, err error) {
	// A cancelled caller says nothing about the backend.
	if ctx.Err() != nil {
		return
	}
	g.failures.Add(1)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.retryAt = time.Now().Add(g.opts.Cooldown)
	if g.degraded {
		return
	}
	g.degraded = true
	g.degradations.Add(1)
	g.logger.Warn(fmt.Sprintf("%s: %v; falling back to direct evaluation for %s",
		domain.ErrCacheUnavailable.Error(), err, g.opts.Cooldown))
}

func (g *Guard) succeed() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.degraded {
		return
	}
	g.degraded = false
	g.logger.Info("result cache recovered")
}
