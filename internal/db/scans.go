package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/lmsctl/internal/scan"
)

// ErrScanNotFound is returned when no scan has the requested id.
var ErrScanNotFound = errors.New("scan not found")

// ScanRow is one archived grab.
type ScanRow struct {
	ID              int64       `json:"id"`
	SessionID       string      `json:"session_id"`
	DevicePath      string      `json:"device_path"`
	FOV             float64     `json:"fov"`
	Resolution      float64     `json:"res"`
	Samples         int         `json:"samples"`
	HasRange        bool        `json:"has_range"`
	HasReflectivity bool        `json:"has_reflectivity"`
	CapturedAt      time.Time   `json:"captured_at"`
	Record          scan.Record `json:"record"`
}

// RecordScan stores one grab taken by session sessionID from path.
func (db *DB) RecordScan(sessionID, path string, rec scan.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO scans (session_id, device_path, fov, resolution, samples, record_json, captured_unix_nanos, has_range, has_reflectivity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, path, rec.FieldOfView, rec.Resolution, rec.Len(), string(payload),
		db.clock.Now().UnixNano(), rec.Range != nil, rec.Reflectivity != nil,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

const scanColumns = `scan_id, session_id, device_path, fov, resolution, samples, has_range, has_reflectivity, captured_unix_nanos, record_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(rs rowScanner) (ScanRow, error) {
	var (
		row     ScanRow
		nanos   int64
		payload string
	)
	if err := rs.Scan(&row.ID, &row.SessionID, &row.DevicePath, &row.FOV, &row.Resolution, &row.Samples,
		&row.HasRange, &row.HasReflectivity, &nanos, &payload); err != nil {
		return ScanRow{}, err
	}
	row.CapturedAt = time.Unix(0, nanos).UTC()
	if err := json.Unmarshal([]byte(payload), &row.Record); err != nil {
		return ScanRow{}, fmt.Errorf("decode scan %d: %w", row.ID, err)
	}
	// Empty channels are dropped from record_json; the flags keep presence.
	if row.HasRange && row.Record.Range == nil {
		row.Record.Range = []uint{}
	}
	if row.HasReflectivity && row.Record.Reflectivity == nil {
		row.Record.Reflectivity = []uint{}
	}
	return row, nil
}

// GetScan returns the scan with the given id.
func (db *DB) GetScan(id int64) (ScanRow, error) {
	row, err := scanRow(db.QueryRow(`SELECT `+scanColumns+` FROM scans WHERE scan_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ScanRow{}, fmt.Errorf("%w: %d", ErrScanNotFound, id)
	}
	return row, err
}

// RecentScans returns up to limit scans, newest first. An empty path matches
// every device.
func (db *DB) RecentScans(path string, limit int) ([]ScanRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+scanColumns+` FROM scans
		WHERE (? = '' OR device_path = ?)
		ORDER BY captured_unix_nanos DESC, scan_id DESC
		LIMIT ?`, path, path, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountScans returns the number of archived scans.
func (db *DB) CountScans() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM scans`).Scan(&n)
	return n, err
}
