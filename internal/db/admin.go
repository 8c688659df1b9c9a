package db

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lmsctl/internal/httputil"
	"github.com/banshee-data/lmsctl/internal/scanplot"
)

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to the archive
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Scan archive",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("scans", "Recently archived scans (?path=&limit=)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				httputil.BadRequest(w, "invalid limit")
				return
			}
			limit = n
		}
		rows, err := db.RecentScans(r.URL.Query().Get("path"), limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to list scans: %v", err))
			return
		}
		if rows == nil {
			rows = []ScanRow{}
		}
		httputil.WriteJSONOK(w, rows)
	}))

	debug.HandleSilentFunc("scan.png", func(w http.ResponseWriter, r *http.Request) {
		row, ok := db.scanFromRequest(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := scanplot.WritePNG(w, row.Record, scanTitle(row)); err != nil {
			http.Error(w, fmt.Sprintf("Failed to render scan: %v", err), http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("scan.html", func(w http.ResponseWriter, r *http.Request) {
		row, ok := db.scanFromRequest(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := scanplot.WriteHTML(w, row.Record, scanTitle(row)); err != nil {
			http.Error(w, fmt.Sprintf("Failed to render scan: %v", err), http.StatusInternalServerError)
		}
	})

	debug.Handle("backup", "Create and download a backup of the archive now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupName := fmt.Sprintf("scans-backup-%d.db", db.clock.Now().Unix())
		backupPath := filepath.Join(os.TempDir(), backupName)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupName))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to write backup: %v", err)
		}
	}))
}

func (db *DB) scanFromRequest(w http.ResponseWriter, r *http.Request) (ScanRow, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "missing or invalid scan id")
		return ScanRow{}, false
	}
	row, err := db.GetScan(id)
	if errors.Is(err, ErrScanNotFound) {
		httputil.NotFound(w, err.Error())
		return ScanRow{}, false
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load scan: %v", err))
		return ScanRow{}, false
	}
	return row, true
}

func scanTitle(row ScanRow) string {
	return fmt.Sprintf("%s scan %d (%.0f/%.2f)", row.DevicePath, row.ID, row.FOV, row.Resolution)
}
