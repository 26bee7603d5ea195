package db

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/walkpal/internal/monitoring"
)

// AttachAdminRoutes mounts tailsql and a gzipped backup download under
// /debug/ on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		monitoring.Logf("[db] tailsql unavailable: %v", err)
	} else {
		tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
			Label: "Alert journal",
		})
		debug.Handle("tailsql/", "Query the alert journal", tsql.NewMux())
	}

	debug.Handle("backup", "Download a gzipped copy of the alert journal", http.HandlerFunc(db.serveBackup))
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := db.snapshot(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(path)))
	zw := gzip.NewWriter(w)
	defer zw.Close()
	if _, err := io.Copy(zw, f); err != nil {
		monitoring.Logf("[db] backup stream interrupted: %v", err)
	}
}

// snapshot writes a consistent copy of the journal with VACUUM INTO. The
// returned cleanup removes it.
func (db *DB) snapshot(ctx context.Context) (string, func(), error) {
	dir, err := os.MkdirTemp("", "walkpal-backup-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			monitoring.Logf("[db] remove backup %s: %v", dir, err)
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("walkpal-%s.db", time.Now().UTC().Format("20060102T150405")))
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
