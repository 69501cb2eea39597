package db

import (
	"database/sql"
	"embed"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nwws-bridge/nwws-bridge/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs all pending migrations for the given driver. Migration
// files are shared between drivers; a file may contain a
// "-- sqlite:" or "-- postgres:" prefixed line to mark a
// driver-specific statement block, otherwise the whole file is
// executed against both.
func Migrate(handle *sql.DB, driver Driver, log *zap.SugaredLogger) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		var exists bool
		err := handle.QueryRow(existsQuery(driver), version).Scan(&exists)
		if err != nil {
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			if log != nil {
				log.Debugw("skipping migration, already applied", "migration", filename, "version", version)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(filepath.Join("migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		stmt := selectDialect(string(sqlBytes), driver)

		if log != nil {
			log.Infow("applying migration", "migration", filename, "version", version)
		}

		tx, err := handle.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}

		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}

		if _, err := tx.Exec(insertMigrationQuery(driver), version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
	}

	if log != nil {
		log.Infow("migrations complete", "total_migrations", len(migrationFiles))
	}

	return nil
}

func existsQuery(driver Driver) string {
	if driver == DriverPostgres {
		return "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)"
	}
	return "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)"
}

func insertMigrationQuery(driver Driver) string {
	if driver == DriverPostgres {
		return "INSERT INTO schema_migrations (version) VALUES ($1)"
	}
	return "INSERT INTO schema_migrations (version) VALUES (?)"
}

// selectDialect picks out the block of a migration file meant for the
// active driver. Files with no "-- sqlite:" / "-- postgres:" markers
// are dialect-neutral and run as-is.
func selectDialect(sqlText string, driver Driver) string {
	const sqliteMarker = "-- sqlite:"
	const postgresMarker = "-- postgres:"

	if !strings.Contains(sqlText, sqliteMarker) && !strings.Contains(sqlText, postgresMarker) {
		return sqlText
	}

	marker := sqliteMarker
	if driver == DriverPostgres {
		marker = postgresMarker
	}

	idx := strings.Index(sqlText, marker)
	if idx == -1 {
		return sqlText
	}
	rest := sqlText[idx+len(marker):]
	if end := strings.Index(rest, "-- end"); end != -1 {
		rest = rest[:end]
	}
	return rest
}
