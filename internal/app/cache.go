package app

import (
	"context"
	"fmt"
	"io"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
)

// pruner is implemented by persistent stores that can drop expired entries.
type pruner interface {
	Prune(ctx context.Context) (int, error)
}

// ClearCache removes every entry from the configured result cache.
func (a *App) ClearCache(ctx context.Context, configPath string) error {
	cfg, err := a.configLoader.Load(configPath)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	backend, err := a.openCache(ctx, cfg.Cache)
	if err != nil {
		return zerr.Wrap(err, "failed to open cache")
	}
	if backend == nil {
		a.logger.Info("no result cache configured, nothing to clear")
		return nil
	}
	if closer, ok := backend.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := backend.Clear(ctx); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to clear cache"), "backend", cfg.Cache.Backend)
	}
	a.logger.Info(fmt.Sprintf("cleared %s cache", cfg.Cache.Backend))
	return nil
}

// PruneCache drops expired entries from the configured persistent cache and returns how many were removed.
func (a *App) PruneCache(ctx context.Context, configPath string) (int, error) {
	cfg, err := a.configLoader.Load(configPath)
	if err != nil {
		return 0, zerr.Wrap(err, "failed to load configuration")
	}

	switch cfg.Cache.Backend {
	case domain.CacheSQLite, domain.CachePostgres:
	default:
		return 0, zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "only persistent caches can be pruned"),
			"backend", cfg.Cache.Backend)
	}

	backend, err := a.openCache(ctx, cfg.Cache)
	if err != nil {
		return 0, zerr.Wrap(err, "failed to open cache")
	}
	if closer, ok := backend.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	p, ok := backend.(pruner)
	if !ok {
		return 0, zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "cache cannot be pruned"), "backend", cfg.Cache.Backend)
	}
	removed, err := p.Prune(ctx)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to prune cache"), "backend", cfg.Cache.Backend)
	}
	a.logger.Info(fmt.Sprintf("pruned %d expired entries from the %s cache", removed, cfg.Cache.Backend))
	return removed, nil
}
