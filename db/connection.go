// Package db provides the database connection and migration
// machinery for the event store. Both SQLite (lightweight deployments
// and tests) and PostgreSQL (production) are supported against the
// same schema.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nwws-bridge/nwws-bridge/errors"
)

// Driver identifies which SQL backend a DSN targets.
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "pgx"
)

const (
	SQLiteJournalMode   = "WAL"
	SQLiteBusyTimeoutMS = 5000
)

// Open opens a database connection for the given driver and DSN. For
// SQLite, dsn is a filesystem path (or ":memory:"); for PostgreSQL, a
// standard connection URL. If log is provided, connection setup is
// logged; otherwise Open operates silently.
func Open(driver Driver, dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	if log != nil {
		log.Debugw("opening database", "driver", driver)
	}

	switch driver {
	case DriverSQLite:
		return openSQLite(dsn, log)
	case DriverPostgres:
		return openPostgres(dsn, log)
	default:
		return nil, errors.Newf("unsupported database driver: %s", driver)
	}
}

func openSQLite(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory: %s", dir)
		}
	}

	handle, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if _, err := handle.Exec("PRAGMA journal_mode = " + SQLiteJournalMode); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "failed to enable %s journal mode for %s", SQLiteJournalMode, path)
	}
	if _, err := handle.Exec("PRAGMA foreign_keys = ON"); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "failed to enable foreign keys for %s", path)
	}
	if _, err := handle.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "failed to set busy timeout to %dms for %s", SQLiteBusyTimeoutMS, path)
	}

	if log != nil {
		log.Infow("database opened", "path", path, "driver", DriverSQLite, "wal_mode", true)
	}
	return handle, nil
}

func openPostgres(dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	handle, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	if log != nil {
		log.Infow("database opened", "driver", DriverPostgres)
	}
	return handle, nil
}

// OpenWithMigrations opens a connection and runs pending migrations.
func OpenWithMigrations(driver Driver, dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	handle, err := Open(driver, dsn, log)
	if err != nil {
		return nil, err
	}

	if err := Migrate(handle, driver, log); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "failed to run migrations for %s", dsn)
	}

	return handle, nil
}
