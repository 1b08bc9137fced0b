// Package store is the SQL persistence layer: respondents, documents, feedback
// records and the SQL fallback for throttle markers. Postgres (pgx) and SQLite
// share one set of queries through sqlx.Rebind.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"docfeedback/internal/feedback"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = feedback.ErrNotFound

// DriverFor picks the database/sql driver for a connection string.
// postgres:// and postgresql:// URLs go to pgx, everything else is a SQLite path or file: URI.
func DriverFor(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to databaseURL and checks the connection.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	driver := DriverFor(databaseURL)
	dsn := databaseURL
	if driver == DriverSQLite {
		dsn = sqliteDSN(databaseURL)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// sqliteDSN adds the per-connection pragmas. They go into the DSN because
// every pooled connection needs them, not only the first one.
func sqliteDSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}
