// Package config loads and validates dval.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// FileConfigLoader implements ports.ConfigLoader using a YAML file.
type FileConfigLoader struct {
	Filename string
	logger   ports.Logger
}

// NewLoader creates a FileConfigLoader looking for dval.yaml.
func NewLoader(logger ports.Logger) *FileConfigLoader {
	return &FileConfigLoader{Filename: domain.ConfigFileName, logger: logger}
}

// Load reads the configuration from path. A directory resolves to the dval.yaml inside it.
func (l *FileConfigLoader) Load(path string) (*domain.Config, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, l.Filename)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if !hasStoppingRule(cfg) {
		cfg.Valuation.Budget = domain.DefaultBudget
		if l.logger != nil {
			l.logger.Info(fmt.Sprintf("no stopping rule configured, using the default budget of %d utility calls",
				domain.DefaultBudget))
		}
	}
	return cfg, nil
}

// Load reads a configuration file from the given path and returns a validated domain.Config.
// Relative dataset and cache paths are resolved against the directory of the file.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrConfigReadFailed, "cannot load configuration"),
			"path", path), "error", err.Error())
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes and validates a configuration document. Relative paths are resolved against baseDir.
func Parse(data []byte, baseDir string) (*domain.Config, error) {
	var file Dvalfile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, "cannot load configuration"), "error", err.Error())
	}

	var errs error
	cfg := &domain.Config{
		Dataset:   datasetConfig(file.Dataset, baseDir),
		Utility:   domain.UtilityConfig{Kind: file.Utility.Kind, Params: file.Utility.Params},
		Valuation: valuationConfig(file.Valuation, &errs),
		Execution: executionConfig(file.Execution, &errs),
		Cache:     cacheConfig(file.Cache, baseDir, &errs),
	}
	if errs != nil {
		return nil, errs
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for unsupported or inconsistent values.
func Validate(cfg *domain.Config) error {
	var errs error

	if cfg.Dataset.Path == "" {
		errs = errors.Join(errs, invalid("dataset.path", "", "is required"))
	}
	if cfg.Dataset.TestFraction < 0 || cfg.Dataset.TestFraction >= 1 {
		errs = errors.Join(errs, invalid("dataset.test_fraction", cfg.Dataset.TestFraction, "must be in [0, 1)"))
	}
	if cfg.Utility.Kind == "" {
		errs = errors.Join(errs, invalid("utility.kind", "", "is required"))
	}

	v := cfg.Valuation
	if !slices.Contains([]string{domain.AlgorithmShapley, domain.AlgorithmBanzhaf, domain.AlgorithmBeta}, v.Algorithm) {
		errs = errors.Join(errs, zerr.With(zerr.Wrap(domain.ErrUnknownAlgorithm, "valuation.algorithm"), "value", v.Algorithm))
	}
	if v.Algorithm == domain.AlgorithmBeta && (v.Alpha <= 0 || v.Beta <= 0) {
		errs = errors.Join(errs, invalid("valuation.alpha/beta", [2]float64{v.Alpha, v.Beta}, "must be positive"))
	}
	if !slices.Contains([]string{
		domain.SamplerPermutation, domain.SamplerUniform, domain.SamplerAntithetic, domain.SamplerDeterministic,
	}, v.Sampler) {
		errs = errors.Join(errs, zerr.With(zerr.Wrap(domain.ErrUnknownSampler, "valuation.sampler"), "value", v.Sampler))
	}
	if v.Budget < 0 || v.Precision < 0 || v.MinUpdates < 0 || v.MaxUpdates < 0 || v.MaxDuration < 0 {
		errs = errors.Join(errs, invalid("valuation", "", "budget, precision and limits must not be negative"))
	}
	if h := v.Hoeffding; h != nil && (h.Epsilon <= 0 || h.Delta <= 0 || h.Delta >= 1 || h.Range <= 0) {
		errs = errors.Join(errs, invalid("valuation.hoeffding", *h, "needs epsilon > 0, 0 < delta < 1 and range > 0"))
	}

	e := cfg.Execution
	switch e.Backend {
	case domain.ExecutorLocal:
	case domain.ExecutorRemote:
		if len(e.Workers) == 0 {
			errs = errors.Join(errs, zerr.Wrap(domain.ErrNoWorkers, "execution.workers"))
		}
	default:
		errs = errors.Join(errs, zerr.With(zerr.Wrap(domain.ErrUnknownExecutorBackend, "execution.backend"), "value", e.Backend))
	}
	if e.NJobs <= 0 {
		errs = errors.Join(errs, invalid("execution.n_jobs", e.NJobs, "must be positive"))
	}
	if e.Backpressure != domain.BackpressureBlock && e.Backpressure != domain.BackpressureReject {
		errs = errors.Join(errs, invalid("execution.backpressure", e.Backpressure, "must be block or reject"))
	}
	if e.RetryLimit < 0 {
		errs = errors.Join(errs, invalid("execution.retry_limit", e.RetryLimit, "must not be negative"))
	}

	c := cfg.Cache
	switch c.Backend {
	case domain.CacheNone, domain.CacheMemory, domain.CacheSQLite:
	case domain.CacheDaemon:
		if c.Address == "" {
			errs = errors.Join(errs, invalid("cache.address", "", "is required by the daemon backend"))
		}
	case domain.CachePostgres:
		if c.DSN == "" {
			errs = errors.Join(errs, invalid("cache.dsn", "", "is required by the postgres backend"))
		}
	default:
		errs = errors.Join(errs, zerr.With(zerr.Wrap(domain.ErrUnknownCacheBackend, "cache.backend"), "value", c.Backend))
	}
	if c.TTL < 0 {
		errs = errors.Join(errs, invalid("cache.ttl", c.TTL.String(), "must not be negative"))
	}

	return errs
}

func datasetConfig(dto DatasetDTO, baseDir string) domain.DatasetConfig {
	label := -1
	if dto.LabelColumn != nil {
		label = *dto.LabelColumn
	}
	return domain.DatasetConfig{
		Path:         resolve(baseDir, dto.Path),
		LabelColumn:  label,
		Header:       dto.Header,
		TestFraction: dto.TestFraction,
		Seed:         dto.Seed,
	}
}

func valuationConfig(dto ValuationDTO, errs *error) domain.ValuationConfig {
	cfg := domain.ValuationConfig{
		Algorithm:   orDefault(dto.Algorithm, domain.AlgorithmShapley),
		Alpha:       dto.Alpha,
		Beta:        dto.Beta,
		Sampler:     orDefault(dto.Sampler, domain.SamplerPermutation),
		Seed:        dto.Seed,
		Budget:      dto.Budget,
		Precision:   dto.Precision,
		MinUpdates:  dto.MinUpdates,
		MaxUpdates:  dto.MaxUpdates,
		MaxDuration: duration("valuation.max_duration", dto.MaxDuration, 0, errs),
	}
	if cfg.Algorithm == domain.AlgorithmBeta {
		if cfg.Alpha == 0 {
			cfg.Alpha = 1
		}
		if cfg.Beta == 0 {
			cfg.Beta = 1
		}
	}
	if dto.Hoeffding != nil {
		cfg.Hoeffding = &domain.HoeffdingConfig{
			Epsilon: dto.Hoeffding.Epsilon,
			Delta:   dto.Hoeffding.Delta,
			Range:   dto.Hoeffding.Range,
		}
	}
	return cfg
}

func executionConfig(dto ExecutionDTO, errs *error) domain.ExecutionConfig {
	cfg := domain.ExecutionConfig{
		Backend:       orDefault(dto.Backend, domain.ExecutorLocal),
		NJobs:         dto.NJobs,
		QueueSize:     dto.QueueSize,
		Backpressure:  orDefault(dto.Backpressure, domain.BackpressureBlock),
		ResultTimeout: duration("execution.result_timeout", dto.ResultTimeout, domain.DefaultResultTimeout, errs),
		RetryLimit:    domain.DefaultRetryLimit,
		RetryBackoff:  duration("execution.retry_backoff", dto.RetryBackoff, domain.DefaultRetryBackoff, errs),
		StrictErrors:  dto.StrictErrors,
		Workers:       dto.Workers,
	}
	if cfg.NJobs == 0 {
		cfg.NJobs = domain.DefaultJobs()
	}
	if dto.RetryLimit != nil {
		cfg.RetryLimit = *dto.RetryLimit
	}
	return cfg
}

func cacheConfig(dto CacheDTO, baseDir string, errs *error) domain.CacheConfig {
	cfg := domain.CacheConfig{
		Backend:    dto.Backend,
		TTL:        duration("cache.ttl", dto.TTL, domain.DefaultCacheTTL, errs),
		MaxEntries: dto.MaxEntries,
		Path:       resolve(baseDir, dto.Path),
		Address:    dto.Address,
		DSN:        dto.DSN,
		OpTimeout:  duration("cache.op_timeout", dto.OpTimeout, domain.DefaultCacheOpTimeout, errs),
		Cooldown:   duration("cache.cooldown", dto.Cooldown, domain.DefaultCacheCooldown, errs),
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = domain.DefaultCacheMaxEntries
	}

	switch cfg.Backend {
	case "":
		switch {
		case cfg.Address != "":
			cfg.Backend = domain.CacheDaemon
		case cfg.DSN != "":
			cfg.Backend = domain.CachePostgres
		default:
			cfg.Backend = domain.CacheMemory
		}
	case domain.CacheLocal:
		cfg.Backend = domain.CacheMemory
		if cfg.Path != "" {
			cfg.Backend = domain.CacheSQLite
		}
	case domain.CacheNetworked:
		cfg.Backend = domain.CacheDaemon
		if cfg.Address == "" && cfg.DSN != "" {
			cfg.Backend = domain.CachePostgres
		}
	}

	if cfg.Backend == domain.CacheSQLite && cfg.Path == "" {
		cfg.Path = domain.DefaultCachePath()
	}
	return cfg
}

func hasStoppingRule(cfg *domain.Config) bool {
	v := cfg.Valuation
	return v.Budget > 0 || v.Precision > 0 || v.MaxUpdates > 0 || v.MaxDuration > 0 ||
		v.Hoeffding != nil || v.Sampler == domain.SamplerDeterministic
}

func duration(field, value string, fallback time.Duration, errs *error) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = errors.Join(*errs, invalid(field, value, "is not a duration"))
		return fallback
	}
	return d
}

func invalid(field string, value any, reason string) error {
	return zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidConfig, field+" "+reason), "field", field), "value", value)
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
