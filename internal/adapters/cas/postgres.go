package cas

import (
	"context"
	"database/sql"
	"strconv"

	_ "github.com/lib/pq" // Registers the "postgres" driver.
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
)

var postgresDialect = dialect{
	name:        "postgres",
	schema:      "sql/postgres.sql",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// OpenPostgres connects to a PostgreSQL database shared by every worker and coordinator.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreOpenFailed.Error())
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, zerr.Wrap(err, domain.ErrStoreOpenFailed.Error())
	}

	store, err := newStore(ctx, db, postgresDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
