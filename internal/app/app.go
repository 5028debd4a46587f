// Package app implements the application layer for dval.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.trai.ch/dval/internal/adapters/cache"
	"go.trai.ch/dval/internal/adapters/cas"
	"go.trai.ch/dval/internal/adapters/daemon"
	"go.trai.ch/dval/internal/adapters/model"
	"go.trai.ch/dval/internal/adapters/pool"
	"go.trai.ch/dval/internal/adapters/report"
	"go.trai.ch/dval/internal/adapters/telemetry"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/dval/internal/engine/coordinator"
	"go.trai.ch/zerr"
)

// shutdownTimeout bounds how long executors and telemetry get to drain on exit.
const shutdownTimeout = 10 * time.Second

// App represents the main application logic.
type App struct {
	configLoader  ports.ConfigLoader
	registry      *model.Registry
	connector     *daemon.Connector
	fingerprinter ports.Fingerprinter
	logger        ports.Logger
	tracer        ports.Tracer
	metrics       ports.Metrics
	stdout        io.Writer
	stderr        io.Writer
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	registry *model.Registry,
	connector *daemon.Connector,
	fingerprinter ports.Fingerprinter,
	log ports.Logger,
	tracer ports.Tracer,
	metrics ports.Metrics,
) *App {
	return &App{
		configLoader:  loader,
		registry:      registry,
		connector:     connector,
		fingerprinter: fingerprinter,
		logger:        log,
		tracer:        tracer,
		metrics:       metrics,
		stdout:        os.Stdout,
		stderr:        os.Stderr,
	}
}

// WithOutput redirects reports to stdout and trace output to stderr.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// RunOptions configuration for the Run method.
type RunOptions struct {
	ConfigPath string
	// Format is the report format: table (default) or json.
	Format string
	// Top limits the report to the highest-valued points.
	Top int
	// Trace writes the run's spans to stderr.
	Trace bool
}

// Run loads the configuration and the dataset, valuates every point and renders the report.
// A cancelled run still renders its partial result before returning the cancellation.
//
//nolint:cyclop // orchestration function
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	// 1. Load the configuration and the dataset
	cfg, err := a.configLoader.Load(opts.ConfigPath)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	ds, err := model.LoadCSV(cfg.Dataset)
	if err != nil {
		return zerr.Wrap(err, "failed to load dataset")
	}

	u, err := a.registry.Build(cfg.Utility.Kind, ds, cfg.Utility.Params)
	if err != nil {
		return zerr.Wrap(err, "failed to build utility")
	}

	runCfg, err := a.runConfig(cfg, ds)
	if err != nil {
		return err
	}

	// 2. Telemetry
	if opts.Trace {
		provider, err := telemetry.Setup(ctx, telemetry.Options{TraceOutput: a.stderr})
		if err != nil {
			return err
		}
		defer a.shutdown(ctx, "telemetry", provider.Shutdown)
	}

	// 3. Cache and executor
	resultCache := a.openRunCache(ctx, cfg.Cache)
	if closer, ok := resultCache.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	exec, err := a.openExecutor(ctx, cfg.Execution)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx, "executor", exec.Shutdown)

	// 4. Valuate
	coord := coordinator.New(exec, resultCache, a.fingerprinter, a.logger, a.tracer, a.metrics)
	res, runErr := coord.Valuate(ctx, ds, u, runCfg)
	if res == nil {
		return zerr.Wrap(runErr, "valuation failed")
	}

	// 5. Report
	meta := report.Meta{Dataset: ds.Name(), Utility: u.Identity(), Top: opts.Top}
	if err := report.New(a.stdout).Render(res, meta, opts.Format); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// runConfig derives the coordinator parameters, including a Hoeffding budget.
// A configured budget below the Hoeffding budget wins.
func (a *App) runConfig(cfg *domain.Config, ds *domain.Dataset) (domain.RunConfig, error) {
	runCfg := cfg.RunConfig()

	h := cfg.Valuation.Hoeffding
	if h == nil {
		return runCfg, nil
	}

	budget, err := coordinator.HoeffdingBudget(ds.Len(), h.Epsilon, h.Delta, h.Range)
	if err != nil {
		return runCfg, err
	}
	if runCfg.Budget <= 0 || budget < runCfg.Budget {
		runCfg.Budget = budget
	}
	a.logger.Info(fmt.Sprintf("hoeffding bound (epsilon=%g, delta=%g, range=%g) allows %d utility calls",
		h.Epsilon, h.Delta, h.Range, runCfg.Budget))
	return runCfg, nil
}

// openRunCache opens the configured backend behind a guard. A backend that cannot be
// opened is logged and the run continues without a cache; nil means no cache.
func (a *App) openRunCache(ctx context.Context, cfg domain.CacheConfig) ports.ResultCache {
	backend, err := a.openCache(ctx, cfg)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("%s: %v; running without a result cache", domain.ErrCacheUnavailable.Error(), err))
		return nil
	}
	if backend == nil {
		return nil
	}
	return cache.NewGuard(backend, a.logger, cache.GuardOptions{OpTimeout: cfg.OpTimeout, Cooldown: cfg.Cooldown})
}

// openCache opens the raw backend selected by cfg, or nil for the none backend.
func (a *App) openCache(ctx context.Context, cfg domain.CacheConfig) (ports.ResultCache, error) {
	openCtx, cancel := context.WithTimeout(ctx, max(cfg.OpTimeout, time.Second))
	defer cancel()

	switch cfg.Backend {
	case domain.CacheNone:
		return nil, nil
	case domain.CacheMemory, "":
		return cache.NewMemory(cfg.MaxEntries), nil
	case domain.CacheSQLite:
		store, err := cas.OpenSQLite(openCtx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case domain.CachePostgres:
		store, err := cas.OpenPostgres(openCtx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case domain.CacheDaemon:
		client, err := a.connector.DialCache(openCtx, cfg.Address)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownCacheBackend, "cannot open cache"), "backend", cfg.Backend)
	}
}

func (a *App) openExecutor(ctx context.Context, cfg domain.ExecutionConfig) (ports.Executor, error) {
	opts := pool.Options{Workers: cfg.NJobs, QueueSize: cfg.QueueSize, Backpressure: cfg.Backpressure}
	switch cfg.Backend {
	case domain.ExecutorLocal, "":
		return pool.New(opts), nil
	case domain.ExecutorRemote:
		exec, err := a.connector.RemoteExecutor(ctx, cfg.Workers, opts)
		if err != nil {
			return nil, err
		}
		return exec, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownExecutorBackend, "cannot create executor"), "backend", cfg.Backend)
	}
}

// shutdown runs stop with a bounded context that survives the caller's cancellation.
func (a *App) shutdown(ctx context.Context, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		a.logger.Warn(fmt.Sprintf("%s shutdown: %v", name, err))
	}
}
