package domain

import (
	"path/filepath"
	"runtime"
	"time"
)

const (
	// DvalDirName is the name of the internal workspace directory.
	DvalDirName = ".dval"

	// CacheFileName is the name of the local persistent cache database.
	CacheFileName = "cache.db"

	// ConfigFileName is the name of the default configuration file.
	ConfigFileName = "dval.yaml"

	// DefaultDaemonAddress is the default listen address of the cache daemon.
	DefaultDaemonAddress = "127.0.0.1:7077"

	// DefaultCacheTTL is the default time-to-live of cache entries.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultCacheMaxEntries bounds the in-memory cache.
	DefaultCacheMaxEntries = 100_000

	// DefaultCacheOpTimeout bounds every cache operation.
	DefaultCacheOpTimeout = 250 * time.Millisecond

	// DefaultCacheCooldown is how long a degraded cache is bypassed before it is tried again.
	DefaultCacheCooldown = 5 * time.Second

	// DefaultResultTimeout bounds how long the coordinator waits on a single work item.
	DefaultResultTimeout = 5 * time.Minute

	// DefaultRetryLimit is the number of retries of a failing utility call.
	DefaultRetryLimit = 2

	// DefaultRetryBackoff is the initial delay between retries.
	DefaultRetryBackoff = 50 * time.Millisecond

	// DefaultBudget is the evaluation budget used when no stopping rule is configured.
	DefaultBudget = 1000

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// DefaultCachePath returns the default path of the local persistent cache.
// It joins .dval and cache.db.
func DefaultCachePath() string {
	return filepath.Join(DvalDirName, CacheFileName)
}

// DefaultJobs returns the default worker count.
func DefaultJobs() int {
	return runtime.NumCPU()
}
