package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open creates or opens a SQLite database at path and applies the
// pragmas the runtime relies on:
//
//   - WAL mode so other handles on the same file can read while the
//     runtime writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// The returned pool is capped at one connection, so all statements
// issued through it serialize. Behaviour queries during an apply cycle
// do not contend for it: CurrentEntities routes them through the
// apply's own transaction.
//
// Open does not create the schema; call Persistence.Create for that.
// This function is idempotent.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageError("open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageError("connect", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, storageError(fmt.Sprintf("execute %q", pragma), err)
		}
	}

	// SQLite allows a single writer; serializing statements through one
	// connection avoids SQLITE_BUSY under concurrent publishes. Nested
	// behaviour queries must not reach the pool while an apply
	// transaction holds this connection; they run on the transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// isNoRows reports whether err is sql.ErrNoRows, possibly wrapped.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// querier is the subset of database operations the row-level stores
// need. Both *sql.Tx (apply cycle) and *sql.DB (reads) satisfy it.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
