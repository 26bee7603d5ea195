package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/walkpal/internal/db"
	"github.com/banshee-data/walkpal/internal/httputil"
	"tailscale.com/tsweb"
)

// Journal is the journal surface the report routes read from.
type Journal interface {
	Source
	AlertsSince(ctx context.Context, since time.Time) ([]db.AlertRecord, error)
}

// AttachAdminRoutes mounts the report pages on the debug mux:
//
//	/debug/alerts-summary     per-class JSON summary
//	/debug/alerts-chart       timeline, ?window=1h&bucket=1m
//	/debug/depth-histogram    PNG histogram, ?class=car&bins=10
func AttachAdminRoutes(mux *http.ServeMux, j Journal) {
	debug := tsweb.Debugger(mux)

	debug.Handle("alerts-summary", "Per-class alert summary (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := Summarize(r.Context(), j)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, summary)
	}))

	debug.Handle("alerts-chart", "Alert timeline chart", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window, err := durationParam(r, "window", time.Hour)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		bucket, err := durationParam(r, "bucket", time.Minute)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		records, err := j.AlertsSince(r.Context(), time.Now().Add(-window))
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		var buf bytes.Buffer
		if err := TimelineChart(&buf, records, bucket); err != nil {
			if errors.Is(err, ErrNoData) {
				httputil.NotFound(w, "no alerts in window")
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}))

	debug.Handle("depth-histogram", "Alert depth histogram (PNG)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := r.URL.Query().Get("class")
		if class == "" {
			httputil.BadRequest(w, "class is required")
			return
		}
		bins := defaultBins
		if s := r.URL.Query().Get("bins"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 100 {
				httputil.BadRequest(w, "bins must be between 1 and 100")
				return
			}
			bins = v
		}
		depths, err := j.AlertDepths(r.Context(), class)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		var buf bytes.Buffer
		if err := DepthHistogramPNG(&buf, class, depths, bins); err != nil {
			if errors.Is(err, ErrNoData) {
				httputil.NotFound(w, "no alerts for class")
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
}

func durationParam(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, errors.New(name + " must be a positive duration")
	}
	return d, nil
}
