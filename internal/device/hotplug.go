// Package device watches udev for the wearable's serial device coming and
// going so the link can be reopened without restarting the daemon.
package device

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/pilebones/go-udev/netlink"
)

// Handler reacts to the configured device appearing or disappearing.
type Handler interface {
	DeviceAdded(ctx context.Context, path string)
	DeviceRemoved(ctx context.Context, path string)
}

// Linker is the subset of the wearable link driven by hotplug events.
type Linker interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// LinkHandler reconnects a link on add and drops it on remove.
type LinkHandler struct {
	Link Linker
}

func (h LinkHandler) DeviceAdded(ctx context.Context, path string) {
	if err := h.Link.Connect(ctx); err != nil {
		monitoring.Logf("[hotplug] reconnect %s failed: %v", path, err)
	}
}

func (h LinkHandler) DeviceRemoved(_ context.Context, path string) {
	h.Link.Disconnect()
}

// Monitor listens for tty add/remove uevents for one device path.
type Monitor struct {
	device  string
	handler Handler

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor returns a monitor for device, or nil when device is empty.
func NewMonitor(device string, handler Handler) *Monitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	return &Monitor{device: device, handler: handler}
}

// Device returns the watched device path.
func (m *Monitor) Device() string { return m.device }

// Start connects to the udev netlink socket and begins monitoring.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return err
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	monitoring.Logf("[hotplug] watching %s", m.device)
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
	monitoring.Logf("[hotplug] stopped")
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, Matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			m.HandleEvent(ctx, ev)
		case err := <-errs:
			monitoring.Logf("[hotplug] netlink error: %v", err)
		}
	}
}

// Matcher matches add and remove events of the tty subsystem.
func Matcher() netlink.Matcher {
	action := "^(add|remove)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^tty$",
		},
	})
	return rules
}

// HandleEvent dispatches ev to the handler when it concerns the watched
// device.
func (m *Monitor) HandleEvent(ctx context.Context, ev netlink.UEvent) {
	if !m.matchesDevice(ev) {
		return
	}
	if m.handler == nil {
		return
	}
	switch ev.Action {
	case netlink.ADD:
		monitoring.Logf("[hotplug] %s added", m.device)
		m.handler.DeviceAdded(ctx, m.device)
	case netlink.REMOVE:
		monitoring.Logf("[hotplug] %s removed", m.device)
		m.handler.DeviceRemoved(ctx, m.device)
	}
}

// matchesDevice compares the event's device node and udev symlinks with
// the configured path, which may itself be a /dev/serial/by-id link.
func (m *Monitor) matchesDevice(ev netlink.UEvent) bool {
	if name := devName(ev); name != "" && name == m.device {
		return true
	}
	for _, link := range strings.Fields(ev.Env["DEVLINKS"]) {
		if link == m.device {
			return true
		}
	}
	return false
}

// devName returns the absolute device node of ev. Kernel events carry a
// bare DEVNAME; udev events carry the /dev path.
func devName(ev netlink.UEvent) string {
	if name := ev.Env["DEVNAME"]; name != "" {
		if filepath.IsAbs(name) {
			return name
		}
		return "/dev/" + name
	}
	devpath := ev.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	return "/dev/" + filepath.Base(devpath)
}
