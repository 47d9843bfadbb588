package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLite opens a SQLite database file and verifies it. Writes are
// serialised through a single connection.
func NewSQLite(ctx context.Context, path string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open(sqlite, %q): %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	return sqlDB, nil
}
