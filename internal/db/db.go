// Package db is the SQLite alert journal: every alert the pipeline emits
// and the lifecycle of every tracked object that produced one.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// DB is the alert journal.
type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the journal at path and applies connection pragmas. The
// schema is left as found; see NewDB.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection so pragmas stick and ":memory:" is a single database
	conn.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &DB{DB: conn, path: path}, nil
}

// NewDB is OpenDB followed by MigrateUp.
func NewDB(path string) (*DB, error) {
	j, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := j.MigrateUp(); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the file the journal was opened from.
func (db *DB) Path() string { return db.path }

// Timestamps are stored as REAL unix seconds so tailsql queries can do
// arithmetic on them directly.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second))).UTC()
}
