package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwws-bridge/nwws-bridge/errors"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("successfully opens database and runs migrations", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		conn, err := OpenWithMigrations(DriverSQLite, dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, conn)
		defer conn.Close()

		var exists int
		err = conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&exists)
		require.NoError(t, err)
		assert.Equal(t, 1, exists, "schema_migrations table should exist after migrations")

		err = conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='events'").Scan(&exists)
		require.NoError(t, err)
		assert.Equal(t, 1, exists, "events table should exist after migrations")
	})

	t.Run("migration errors include stack traces", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		firstDB, err := Open(DriverSQLite, dbPath, nil)
		require.NoError(t, err)
		firstDB.Close()

		err = os.Chmod(tmpDir, 0o555)
		require.NoError(t, err)
		defer os.Chmod(tmpDir, 0o755)

		conn, err := OpenWithMigrations(DriverSQLite, dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, conn)

		stackTrace := errors.GetReportableStackTrace(err)
		assert.NotNil(t, stackTrace, "migration errors should have stack traces")

		detailed := fmt.Sprintf("%+v", err)
		assert.Contains(t, detailed, "connection.go", "stack should reference source file")
		assert.Contains(t, detailed, "stack trace:", "error should include stack trace")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("creates events table", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		conn, err := Open(DriverSQLite, dbPath, nil)
		require.NoError(t, err)
		defer conn.Close()

		err = Migrate(conn, DriverSQLite, nil)
		require.NoError(t, err)

		var count int
		err = conn.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("is idempotent", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		conn, err := Open(DriverSQLite, dbPath, nil)
		require.NoError(t, err)
		defer conn.Close()

		err = Migrate(conn, DriverSQLite, nil)
		require.NoError(t, err)

		err = Migrate(conn, DriverSQLite, nil)
		require.NoError(t, err, "running migrations multiple times should be safe")
	})

	t.Run("migration errors have context", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		conn, err := Open(DriverSQLite, dbPath, nil)
		require.NoError(t, err)
		conn.Close()

		err = Migrate(conn, DriverSQLite, nil)
		require.Error(t, err)
		assert.NotNil(t, err)
	})
}
