// Package utility wraps user-supplied utility functions with fingerprinting and
// result caching.
//
// Caching assumes the wrapped utility is deterministic. A stochastic utility
// (one that draws its own random seed) returns a stale but stable score for each
// subset once it has been cached; use WithBypass when every call needs a fresh draw.
package utility

import (
	"context"
	"errors"
	"fmt"
	"math"
	"maps"
	"sync/atomic"
	"time"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Utility = (*Wrapper)(nil)

// Stats counts what a Wrapper has done.
type Stats struct {
	Hits        int64
	Misses      int64
	Evaluations int64
	Failures    int64
	CacheErrors int64
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithConfig folds extra parameters into every fingerprint.
func WithConfig(config map[string]string) Option {
	return func(w *Wrapper) {
		w.config = maps.Clone(config)
	}
}

// WithTTL sets the time-to-live of cached scores.
func WithTTL(ttl time.Duration) Option {
	return func(w *Wrapper) {
		w.ttl = ttl
	}
}

// WithBypass disables cache reads and writes.
func WithBypass() Option {
	return func(w *Wrapper) {
		w.bypass = true
	}
}

// WithMetrics records cache lookups and evaluations.
func WithMetrics(m ports.Metrics) Option {
	return func(w *Wrapper) {
		w.metrics = m
	}
}

// WithPoints records the number of points the utility is defined over.
// Subsets with indices outside [0, n) are then rejected before evaluation.
func WithPoints(n int) Option {
	return func(w *Wrapper) {
		w.points = n
	}
}

// Wrapper evaluates a utility through the result cache.
// Failures are never cached and cache errors never reach the caller.
type Wrapper struct {
	utility       ports.Utility
	cache         ports.ResultCache
	fingerprinter ports.Fingerprinter
	metrics       ports.Metrics
	config        map[string]string
	ttl           time.Duration
	points        int
	bypass        bool

	hits        atomic.Int64
	misses      atomic.Int64
	evaluations atomic.Int64
	failures    atomic.Int64
	cacheErrors atomic.Int64
}

// New wraps u. A nil cache disables caching.
func New(u ports.Utility, c ports.ResultCache, fp ports.Fingerprinter, opts ...Option) *Wrapper {
	w := &Wrapper{
		utility:       u,
		cache:         c,
		fingerprinter: fp,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cache == nil {
		w.bypass = true
	}
	return w
}

// Identity returns the identity of the wrapped utility.
func (w *Wrapper) Identity() string {
	return w.utility.Identity()
}

// Config returns the extra parameters folded into fingerprints.
func (w *Wrapper) Config() map[string]string {
	return maps.Clone(w.config)
}

// Points returns the number of points set by WithPoints, or zero when unknown.
func (w *Wrapper) Points() int {
	return w.points
}

// Validate reports an index of subset outside the points set by WithPoints.
func (w *Wrapper) Validate(subset domain.Subset) error {
	if w.points <= 0 {
		return nil
	}
	for _, idx := range subset.Indices() {
		if idx < 0 || idx >= w.points {
			return zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidSubset, "index out of range"),
				"index", idx), "points", w.points)
		}
	}
	return nil
}

// Call builds the utility call for subset.
func (w *Wrapper) Call(subset domain.Subset) domain.UtilityCall {
	return domain.UtilityCall{
		Subset:    subset,
		UtilityID: w.utility.Identity(),
		Config:    w.config,
	}
}

// Fingerprint returns the cache key of subset.
func (w *Wrapper) Fingerprint(subset domain.Subset) domain.Fingerprint {
	return w.fingerprinter.Fingerprint(w.Call(subset))
}

// Evaluate returns the cached score of subset, or evaluates and caches it.
// Any failed evaluation, a panic or a non-finite score included, returns an *domain.EvaluationError.
func (w *Wrapper) Evaluate(ctx context.Context, subset domain.Subset) (float64, error) {
	if err := w.Validate(subset); err != nil {
		w.failures.Add(1)
		return 0, domain.NewEvaluationError(w.utility.Identity(), subset, err)
	}

	fp := w.Fingerprint(subset)

	if !w.bypass {
		if score, ok := w.lookup(ctx, fp); ok {
			return score, nil
		}
	}

	score, err := w.invoke(ctx, subset)
	if err != nil {
		return 0, err
	}

	if !w.bypass {
		entry := domain.CacheEntry{Fingerprint: fp, Score: score, CreatedAt: time.Now(), TTL: w.ttl}
		if err := w.cache.Put(ctx, entry); err != nil {
			w.cacheErrors.Add(1)
		}
	}
	return score, nil
}

// Stats returns the counters accumulated so far.
func (w *Wrapper) Stats() Stats {
	return Stats{
		Hits:        w.hits.Load(),
		Misses:      w.misses.Load(),
		Evaluations: w.evaluations.Load(),
		Failures:    w.failures.Load(),
		CacheErrors: w.cacheErrors.Load(),
	}
}

func (w *Wrapper) lookup(ctx context.Context, fp domain.Fingerprint) (float64, bool) {
	entry, err := w.cache.Get(ctx, fp)
	switch {
	case err != nil:
		w.cacheErrors.Add(1)
		w.recordLookup(ctx, "error")
		return 0, false
	case entry == nil:
		w.misses.Add(1)
		w.recordLookup(ctx, "miss")
		return 0, false
	default:
		w.hits.Add(1)
		w.recordLookup(ctx, "hit")
		return entry.Score, true
	}
}

func (w *Wrapper) invoke(ctx context.Context, subset domain.Subset) (float64, error) {
	start := time.Now()
	score, err := w.call(ctx, subset)
	if err == nil && (math.IsNaN(score) || math.IsInf(score, 0)) {
		err = zerr.With(zerr.Wrap(domain.ErrInvalidScore, "score rejected"), "score", fmt.Sprint(score))
	}

	w.evaluations.Add(1)
	if w.metrics != nil {
		w.metrics.Evaluation(ctx, time.Since(start), err)
	}
	if err == nil {
		return score, nil
	}

	w.failures.Add(1)
	var evalErr *domain.EvaluationError
	if errors.As(err, &evalErr) {
		return 0, err
	}
	return 0, domain.NewEvaluationError(w.utility.Identity(), subset, err)
}

// call evaluates the utility, turning a panic into an error.
func (w *Wrapper) call(ctx context.Context, subset domain.Subset) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = zerr.With(zerr.Wrap(domain.ErrWorkPanicked, "utility panicked"), "panic", fmt.Sprint(r))
		}
	}()
	return w.utility.Evaluate(ctx, subset)
}

func (w *Wrapper) recordLookup(ctx context.Context, outcome string) {
	if w.metrics != nil {
		w.metrics.CacheLookup(ctx, outcome)
	}
}
