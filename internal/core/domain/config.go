package domain

import "time"

// Cache backend names.
const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CacheDaemon   = "daemon"
	CachePostgres = "postgres"

	// CacheLocal and CacheNetworked are aliases for the default local and networked backends.
	CacheLocal     = "local"
	CacheNetworked = "networked"
)

// Executor backend names.
const (
	ExecutorLocal  = "local"
	ExecutorRemote = "remote"
)

// Backpressure modes of the local executor.
const (
	BackpressureBlock  = "block"
	BackpressureReject = "reject"
)

// Config is the validated configuration of dval.
type Config struct {
	Dataset   DatasetConfig
	Utility   UtilityConfig
	Valuation ValuationConfig
	Execution ExecutionConfig
	Cache     CacheConfig
}

// DatasetConfig describes where and how to load the dataset.
type DatasetConfig struct {
	Path string
	// LabelColumn is the zero-based label column; negative values count from the end.
	LabelColumn  int
	Header       bool
	TestFraction float64
	Seed         uint64
}

// UtilityConfig selects a built-in utility.
type UtilityConfig struct {
	Kind   string
	Params map[string]string
}

// HoeffdingConfig derives the budget from a Hoeffding bound on permutation samples.
type HoeffdingConfig struct {
	Epsilon float64
	Delta   float64
	Range   float64
}

// ValuationConfig selects the semivalue, sampler and stopping rules.
type ValuationConfig struct {
	Algorithm   string
	Alpha       float64
	Beta        float64
	Sampler     string
	Seed        uint64
	Budget      int
	Precision   float64
	MinUpdates  int
	MaxUpdates  int
	MaxDuration time.Duration
	Hoeffding   *HoeffdingConfig
}

// ExecutionConfig selects and sizes the executor.
type ExecutionConfig struct {
	Backend       string
	NJobs         int
	QueueSize     int
	Backpressure  string
	ResultTimeout time.Duration
	RetryLimit    int
	RetryBackoff  time.Duration
	StrictErrors  bool
	Workers       []string
}

// CacheConfig selects and tunes the result cache backend.
type CacheConfig struct {
	Backend    string
	TTL        time.Duration
	MaxEntries int
	Path       string
	Address    string
	DSN        string
	OpTimeout  time.Duration
	Cooldown   time.Duration
}

// RunConfig derives the coordinator parameters from the configuration.
func (c *Config) RunConfig() RunConfig {
	return RunConfig{
		Algorithm:     c.Valuation.Algorithm,
		Alpha:         c.Valuation.Alpha,
		Beta:          c.Valuation.Beta,
		Sampler:       c.Valuation.Sampler,
		Seed:          c.Valuation.Seed,
		NJobs:         c.Execution.NJobs,
		Budget:        c.Valuation.Budget,
		Precision:     c.Valuation.Precision,
		MinUpdates:    c.Valuation.MinUpdates,
		MaxUpdates:    c.Valuation.MaxUpdates,
		MaxDuration:   c.Valuation.MaxDuration,
		CacheTTL:      c.Cache.TTL,
		RetryLimit:    c.Execution.RetryLimit,
		RetryBackoff:  c.Execution.RetryBackoff,
		ResultTimeout: c.Execution.ResultTimeout,
		StrictErrors:  c.Execution.StrictErrors,
		UtilityConfig: c.Utility.Params,
	}
}
