package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/walkpal/internal/db"
	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/httputil"
	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/banshee-data/walkpal/internal/overlay"
	"github.com/banshee-data/walkpal/internal/pipeline"
	"github.com/banshee-data/walkpal/internal/proximity"
	"github.com/banshee-data/walkpal/internal/serialmux"
	"github.com/banshee-data/walkpal/internal/tracking"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
)

// Pipeline is the running pipeline as seen by the API.
type Pipeline interface {
	Stats() pipeline.Stats
	Tracker() *tracking.Tracker
	Engine() *proximity.Engine
}

// AlertStore reads the alert journal.
type AlertStore interface {
	RecentAlerts(ctx context.Context, limit int) ([]db.AlertRecord, error)
}

// Wearable is the wearable link as seen by the API.
type Wearable interface {
	SendCommand(command string) error
	Connected() bool
	Path() string
	State() *serialmux.DeviceState
}

// OverlayStats reports overlay feed counters.
type OverlayStats interface {
	Stats() overlay.PublisherStats
}

type Server struct {
	pipeline Pipeline
	alerts   AlertStore
	wearable Wearable
	overlay  OverlayStats
}

// NewServer creates the API server. alerts and ov may be nil.
func NewServer(p Pipeline, alerts AlertStore, wearable Wearable, ov OverlayStats) *Server {
	return &Server{
		pipeline: p,
		alerts:   alerts,
		wearable: wearable,
		overlay:  ov,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/policies", s.listPolicies)
	mux.HandleFunc("/api/command", s.sendCommand)
	mux.HandleFunc("/api/wearable", s.showWearable)
	return mux
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.pipeline.Tracker().Snapshot())
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.alerts == nil {
		httputil.ServiceUnavailable(w, "alert journal disabled")
		return
	}

	limit := defaultAlertLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > maxAlertLimit {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = v
	}

	alerts, err := s.alerts.RecentAlerts(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve alerts")
		monitoring.Logf("[api] recent alerts: %v", err)
		return
	}
	if alerts == nil {
		alerts = []db.AlertRecord{}
	}
	httputil.WriteJSONOK(w, alerts)
}

type statsResponse struct {
	Pipeline pipeline.Stats          `json:"pipeline"`
	Overlay  *overlay.PublisherStats `json:"overlay,omitempty"`
	Wearable wearableResponse        `json:"wearable"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	resp := statsResponse{
		Pipeline: s.pipeline.Stats(),
		Wearable: s.wearableState(),
	}
	if s.overlay != nil {
		ov := s.overlay.Stats()
		resp.Overlay = &ov
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.pipeline.Engine().Policies())
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var command string
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "Invalid JSON body")
			return
		}
		command = req.Command
	} else {
		command = r.FormValue("command")
	}
	if strings.TrimSpace(command) == "" {
		httputil.BadRequest(w, "Missing command")
		return
	}

	cmd, err := hazard.ParseCommand(command)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.wearable.SendCommand(cmd.String()); err != nil {
		if errors.Is(err, serialmux.ErrNotConnected) {
			httputil.ServiceUnavailable(w, err.Error())
			return
		}
		httputil.InternalServerError(w, "Failed to send command")
		monitoring.Logf("[api] send command %s: %v", cmd, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": cmd.String()})
}

type wearableResponse struct {
	Path      string                   `json:"path,omitempty"`
	Connected bool                     `json:"connected"`
	Device    serialmux.DeviceSnapshot `json:"device"`
}

func (s *Server) wearableState() wearableResponse {
	return wearableResponse{
		Path:      s.wearable.Path(),
		Connected: s.wearable.Connected(),
		Device:    s.wearable.State().Snapshot(),
	}
}

func (s *Server) showWearable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.wearableState())
}
