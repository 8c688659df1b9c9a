// Package db is the scan archive: every successful grab can be stored in a
// SQLite database whose schema is managed by embedded migrations.
package db

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/lmsctl/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// NewDB opens or creates the archive at path and migrates it to the latest
// schema.
func NewDB(path string) (*DB, error) {
	return NewDBWithClock(path, timeutil.RealClock{})
}

// NewDBWithClock is NewDB with an explicit clock for capture timestamps.
func NewDBWithClock(path string, clock timeutil.Clock) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writes come from a single dispatcher.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, path: path, clock: clock}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the archive was opened from.
func (db *DB) Path() string { return db.path }
