// Package cas implements fingerprint-addressed result stores on SQL databases:
// a local SQLite file and a shared PostgreSQL table.
package cas

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
)

//go:embed sql/*
var schemas embed.FS

var _ ports.ResultCache = (*Store)(nil)

// dialect captures the differences between the supported databases.
type dialect struct {
	name        string
	schema      string
	placeholder func(n int) string
}

// Store implements ports.ResultCache on a SQL table.
// Writes are single-row upserts, so readers never observe a partial entry.
type Store struct {
	db      *sql.DB
	dialect dialect

	getQuery   string
	putQuery   string
	clearQuery string
	pruneQuery string
}

func newStore(ctx context.Context, db *sql.DB, d dialect) (*Store, error) {
	ddl, err := schemas.ReadFile(d.schema)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read schema")
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreOpenFailed.Error()), "dialect", d.name)
	}

	p := d.placeholder
	return &Store{
		db:      db,
		dialect: d,
		getQuery: fmt.Sprintf(
			"SELECT score, created_at, expires_at FROM utility_scores WHERE fingerprint = %s", p(1)),
		putQuery: fmt.Sprintf(
			"INSERT INTO utility_scores (fingerprint, score, created_at, expires_at) VALUES (%s, %s, %s, %s) "+
				"ON CONFLICT (fingerprint) DO UPDATE SET score = excluded.score, "+
				"created_at = excluded.created_at, expires_at = excluded.expires_at",
			p(1), p(2), p(3), p(4)),
		clearQuery: "DELETE FROM utility_scores",
		pruneQuery: fmt.Sprintf(
			"DELETE FROM utility_scores WHERE expires_at > 0 AND expires_at <= %s", p(1)),
	}, nil
}

// Get returns the entry for fp, or nil if it is missing or expired.
func (s *Store) Get(ctx context.Context, fp domain.Fingerprint) (*domain.CacheEntry, error) {
	var (
		score     float64
		createdAt int64
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, s.getQuery, string(fp)).Scan(&score, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "fingerprint", fp.String())
	}

	now := time.Now().UnixNano()
	if expiresAt > 0 && now >= expiresAt {
		return nil, nil
	}

	entry := &domain.CacheEntry{
		Fingerprint: fp,
		Score:       score,
		CreatedAt:   time.Unix(0, createdAt),
	}
	if expiresAt > 0 {
		entry.TTL = time.Duration(expiresAt - createdAt)
	}
	return entry, nil
}

// Put upserts the entry.
func (s *Store) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var expiresAt int64
	if entry.TTL > 0 {
		expiresAt = entry.ExpiresAt().UnixNano()
	}

	_, err := s.db.ExecContext(ctx, s.putQuery,
		string(entry.Fingerprint), entry.Score, entry.CreatedAt.UnixNano(), expiresAt)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "fingerprint", entry.Fingerprint.String())
	}
	return nil
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.clearQuery); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.pruneQuery, time.Now().UnixNano())
	if err != nil {
		return 0, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, zerr.Wrap(err, "failed to count pruned entries")
	}
	return int(n), nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the database dialect name.
func (s *Store) Dialect() string {
	return s.dialect.name
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
