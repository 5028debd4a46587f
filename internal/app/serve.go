package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.trai.ch/dval/internal/adapters/cache"
	"go.trai.ch/dval/internal/adapters/daemon"
	"go.trai.ch/dval/internal/adapters/model"
	"go.trai.ch/dval/internal/adapters/telemetry"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/dval/internal/engine/utility"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 5 * time.Second

// ServeOptions configuration for the Serve method.
type ServeOptions struct {
	// ConfigPath is optional for a cache-only daemon and required for a worker.
	ConfigPath string
	Listen     string
	// Worker also serves evaluations of the configured utility.
	Worker bool
	// MetricsAddr serves Prometheus metrics over HTTP when set.
	MetricsAddr string
	// IdleTimeout stops the daemon after a period without requests; zero disables it.
	IdleTimeout time.Duration
}

// Serve runs the cache daemon until ctx is cancelled or the idle timeout elapses.
//
//nolint:cyclop // orchestration function
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	cfg, err := a.serveConfig(opts)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	var serverOpts []daemon.ServerOption
	if opts.Worker {
		w, err := a.evaluator(cfg, store)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, daemon.WithEvaluator(w))
		a.logger.Info(fmt.Sprintf("serving evaluations of %s", w.Identity()))
	}

	var provider *telemetry.Provider
	if opts.MetricsAddr != "" {
		provider, err = telemetry.Setup(ctx, telemetry.Options{Prometheus: true})
		if err != nil {
			return err
		}
		defer a.shutdown(ctx, "telemetry", provider.Shutdown)
	}

	listen := opts.Listen
	if listen == "" {
		listen = domain.DefaultDaemonAddress
	}

	lifecycle := daemon.NewLifecycle(opts.IdleTimeout)
	srv := a.connector.NewServer(store, lifecycle, serverOpts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Idle shutdown returns nil; stop the metrics endpoint with it.
		defer cancel()
		return srv.ListenAndServe(gctx, listen)
	})

	if provider != nil {
		httpSrv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metricsMux(provider.Handler()),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			a.logger.Info(fmt.Sprintf("serving metrics on http://%s/metrics", opts.MetricsAddr))
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return zerr.With(zerr.Wrap(err, "metrics server failed"), "addr", opts.MetricsAddr)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer stop()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) serveConfig(opts ServeOptions) (*domain.Config, error) {
	if opts.ConfigPath == "" {
		if opts.Worker {
			return nil, zerr.Wrap(domain.ErrInvalidConfig, "a worker needs a configuration with a dataset and a utility")
		}
		return nil, nil
	}
	cfg, err := a.configLoader.Load(opts.ConfigPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

// openStore opens the cache served by the daemon. Persistent backends are served as
// configured; anything else is served from memory.
func (a *App) openStore(ctx context.Context, cfg *domain.Config) (ports.ResultCache, error) {
	if cfg == nil {
		return cache.NewMemory(domain.DefaultCacheMaxEntries), nil
	}
	switch cfg.Cache.Backend {
	case domain.CacheSQLite, domain.CachePostgres:
		store, err := a.openCache(ctx, cfg.Cache)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open daemon store")
		}
		return store, nil
	default:
		maxEntries := cfg.Cache.MaxEntries
		if maxEntries <= 0 {
			maxEntries = domain.DefaultCacheMaxEntries
		}
		return cache.NewMemory(maxEntries), nil
	}
}

// evaluator builds the utility served by a worker. Its evaluations share the daemon's store.
func (a *App) evaluator(cfg *domain.Config, store ports.ResultCache) (*utility.Wrapper, error) {
	ds, err := model.LoadCSV(cfg.Dataset)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load dataset")
	}
	u, err := a.registry.Build(cfg.Utility.Kind, ds, cfg.Utility.Params)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to build utility")
	}
	return utility.New(u, store, a.fingerprinter,
		utility.WithConfig(cfg.Utility.Params),
		utility.WithTTL(cfg.Cache.TTL),
		utility.WithPoints(ds.Len()),
		utility.WithMetrics(a.metrics),
	), nil
}

func metricsMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}
