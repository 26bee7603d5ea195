package serialmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/httputil"
)

// DisabledSerialMux stands in for the wearable when none is configured or
// the device is unplugged. Valid commands are dropped without error. No
// lines ever arrive, but subscriptions are closed on Unsubscribe and Close
// so readers unblock at shutdown.
type DisabledSerialMux struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := uuid.NewString(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subs[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

func (d *DisabledSerialMux) Send(hazard.Command) error { return nil }

func (d *DisabledSerialMux) SendCommand(command string) error {
	_, err := hazard.ParseCommand(command)
	return err
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Initialise() error { return nil }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	tsweb.Debugger(mux).HandleSilentFunc("wearable-disabled", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]bool{"enabled": false})
	})
}
