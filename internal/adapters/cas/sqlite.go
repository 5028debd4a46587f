package cas

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

var sqliteDialect = dialect{
	name:        "sqlite",
	schema:      "sql/sqlite.sql",
	placeholder: func(int) string { return "?" },
}

// OpenSQLite opens (and creates if needed) a result store in the SQLite file at path.
// The file can be shared by several processes on the same host.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreOpenFailed.Error()), "path", path)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreOpenFailed.Error()), "path", path)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn inside one process.
	db.SetMaxOpenConns(1)

	store, err := newStore(ctx, db, sqliteDialect)
	if err != nil {
		_ = db.Close()
		return nil, zerr.With(err, "path", path)
	}
	return store, nil
}
