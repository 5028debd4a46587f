package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dval/internal/adapters/config"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, domain.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), domain.PrivateFilePerm))
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
version: "1"
dataset:
  path: data/iris.csv
  label_column: 4
  header: true
  test_fraction: 0.25
  seed: 7
utility:
  kind: knn
  params:
    k: "5"
valuation:
  algorithm: beta-shapley
  alpha: 4
  beta: 1
  sampler: uniform
  seed: 42
  budget: 2000
  precision: 0.01
  min_updates: 10
  max_duration: 10m
execution:
  backend: remote
  n_jobs: 8
  queue_size: 32
  backpressure: reject
  result_timeout: 30s
  retry_limit: 0
  retry_backoff: 10ms
  strict_errors: true
  workers: ["10.0.0.1:7077", "10.0.0.2:7077"]
cache:
  backend: networked
  address: 10.0.0.1:7077
  ttl: 1h
  op_timeout: 100ms
  cooldown: 2s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "data/iris.csv"), cfg.Dataset.Path)
	assert.Equal(t, 4, cfg.Dataset.LabelColumn)
	assert.True(t, cfg.Dataset.Header)
	assert.InDelta(t, 0.25, cfg.Dataset.TestFraction, 0)

	assert.Equal(t, "knn", cfg.Utility.Kind)
	assert.Equal(t, map[string]string{"k": "5"}, cfg.Utility.Params)

	assert.Equal(t, domain.AlgorithmBeta, cfg.Valuation.Algorithm)
	assert.InDelta(t, 4.0, cfg.Valuation.Alpha, 0)
	assert.Equal(t, domain.SamplerUniform, cfg.Valuation.Sampler)
	assert.Equal(t, 2000, cfg.Valuation.Budget)
	assert.Equal(t, 10*time.Minute, cfg.Valuation.MaxDuration)

	assert.Equal(t, domain.ExecutorRemote, cfg.Execution.Backend)
	assert.Equal(t, 0, cfg.Execution.RetryLimit)
	assert.Equal(t, domain.BackpressureReject, cfg.Execution.Backpressure)
	assert.Equal(t, 30*time.Second, cfg.Execution.ResultTimeout)
	assert.Len(t, cfg.Execution.Workers, 2)

	assert.Equal(t, domain.CacheDaemon, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Cache.OpTimeout)

	run := cfg.RunConfig()
	assert.True(t, run.StrictErrors)
	assert.Equal(t, 8, run.NJobs)
	assert.Equal(t, time.Hour, run.CacheTTL)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
dataset:
  path: /data/points.csv
utility:
  kind: cardinality
valuation:
  budget: 100
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, -1, cfg.Dataset.LabelColumn)
	assert.Equal(t, domain.AlgorithmShapley, cfg.Valuation.Algorithm)
	assert.Equal(t, domain.SamplerPermutation, cfg.Valuation.Sampler)
	assert.Equal(t, domain.ExecutorLocal, cfg.Execution.Backend)
	assert.Equal(t, domain.DefaultJobs(), cfg.Execution.NJobs)
	assert.Equal(t, domain.BackpressureBlock, cfg.Execution.Backpressure)
	assert.Equal(t, domain.DefaultRetryLimit, cfg.Execution.RetryLimit)
	assert.Equal(t, domain.DefaultResultTimeout, cfg.Execution.ResultTimeout)
	assert.Equal(t, domain.CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, domain.DefaultCacheTTL, cfg.Cache.TTL)
	assert.Equal(t, domain.DefaultCacheMaxEntries, cfg.Cache.MaxEntries)
}

func TestLoad_CacheBackendResolution(t *testing.T) {
	tests := []struct {
		name  string
		cache string
		want  string
	}{
		{name: "address selects daemon", cache: "address: 127.0.0.1:7077", want: domain.CacheDaemon},
		{name: "dsn selects postgres", cache: "dsn: postgres://localhost/dval", want: domain.CachePostgres},
		{name: "local with path is sqlite", cache: "backend: local\n  path: cache.db", want: domain.CacheSQLite},
		{name: "local without path is memory", cache: "backend: local", want: domain.CacheMemory},
		{name: "networked with dsn is postgres", cache: "backend: networked\n  dsn: postgres://db/dval", want: domain.CachePostgres},
		{name: "none", cache: "backend: none", want: domain.CacheNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "dataset:\n  path: d.csv\nutility:\n  kind: cardinality\ncache:\n  "+tt.cache+"\n")
			cfg, err := config.Load(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Cache.Backend)
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing dataset",
			content: "utility:\n  kind: knn\n",
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "unknown algorithm",
			content: "dataset:\n  path: d.csv\nutility:\n  kind: knn\nvaluation:\n  algorithm: leave-one-out\n",
			wantErr: domain.ErrUnknownAlgorithm,
		},
		{
			name:    "unknown sampler",
			content: "dataset:\n  path: d.csv\nutility:\n  kind: knn\nvaluation:\n  sampler: owen\n",
			wantErr: domain.ErrUnknownSampler,
		},
		{
			name:    "remote without workers",
			content: "dataset:\n  path: d.csv\nutility:\n  kind: knn\nexecution:\n  backend: remote\n",
			wantErr: domain.ErrNoWorkers,
		},
		{
			name:    "unknown cache backend",
			content: "dataset:\n  path: d.csv\nutility:\n  kind: knn\ncache:\n  backend: redis\n",
			wantErr: domain.ErrUnknownCacheBackend,
		},
		{
			name:    "networked without address",
			content: "dataset:\n  path: d.csv\nutility:\n  kind: knn\ncache:\n  backend: networked\n",
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "bad duration",
			content: "dataset:\n  path: d.csv\nutility:\n  kind: knn\ncache:\n  ttl: forever\n",
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "bad hoeffding",
			content: "dataset:\n  path: d.csv\nutility:\n  kind: knn\nvaluation:\n  hoeffding:\n    epsilon: 0.1\n    delta: 2\n    range: 1\n",
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "malformed yaml",
			content: "dataset: [",
			wantErr: domain.ErrConfigParseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, domain.ErrConfigReadFailed)
}

func TestFileConfigLoader_DirectoryAndDefaultBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any())

	path := writeConfig(t, "dataset:\n  path: d.csv\nutility:\n  kind: cardinality\n")

	cfg, err := config.NewLoader(log).Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultBudget, cfg.Valuation.Budget)
}

func TestFileConfigLoader_DeterministicNeedsNoBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)

	path := writeConfig(t, "dataset:\n  path: d.csv\nutility:\n  kind: cardinality\nvaluation:\n  sampler: deterministic\n")

	cfg, err := config.NewLoader(log).Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Valuation.Budget)
}
