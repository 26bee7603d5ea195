package serialmux

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/httputil"
	"github.com/banshee-data/walkpal/internal/monitoring"
)

//go:embed templates/*
var adminFS embed.FS

var consoleTemplate = template.Must(template.ParseFS(adminFS, "templates/send-command.html.tmpl"))

// attachAdminRoutes mounts the wearable console on the debug mux:
//
//	/debug/send-command      HTML console listing every class's cues
//	/debug/send-command-api  POST command=a,b,c#
//	/debug/tail              server-sent events of device lines
//	/debug/tail.js           console script
func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "Wearable console", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := consoleTemplate.Execute(w, hazard.Classes()); err != nil {
			monitoring.Logf("[wearable] render console: %v", err)
		}
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.BadRequest(w, "Missing command")
			return
		}
		cmd, err := hazard.ParseCommand(command)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.Send(cmd); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": cmd.String()})
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		// Subscribe before the first write so no line falls in between.
		id, lines := s.Subscribe()
		defer s.Unsubscribe(id)

		fmt.Fprint(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, adminFS, "templates/tail.js")
	})
}
