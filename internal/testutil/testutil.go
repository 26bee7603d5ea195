// Package testutil provides shared test fixtures for packages that sit
// above the alert journal.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/db"
	"github.com/banshee-data/walkpal/internal/tracking"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewDebugRequest returns a request from loopback; the /debug handlers
// reject other peers.
func NewDebugRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// TempJournal opens a migrated journal in a temporary directory. It is
// closed when the test ends.
func TempJournal(t testing.TB) *db.DB {
	t.Helper()
	j, err := db.NewDB(filepath.Join(t.TempDir(), "walkpal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// SeedAlerts records events in order.
func SeedAlerts(t testing.TB, j *db.DB, events ...alert.Event) {
	t.Helper()
	for _, ev := range events {
		if err := j.RecordAlert(context.Background(), ev); err != nil {
			t.Fatalf("record alert %s: %v", ev, err)
		}
	}
}

// Square returns a confident square detection of class at (x, y).
func Square(class string, x, y, size float64) tracking.Detection {
	return tracking.Detection{
		Class:      class,
		Box:        tracking.Rect{X: x, Y: y, Width: size, Height: size},
		Confidence: 0.9,
	}
}
