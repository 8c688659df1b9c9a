package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/lmsctl/internal/timeutil"
)

// setupTestDB opens a fresh archive in a temp dir with a mock clock.
func setupTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	db, err := NewDBWithClock(filepath.Join(t.TempDir(), "scans.db"), clock)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, clock
}
