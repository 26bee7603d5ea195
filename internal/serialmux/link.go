package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/banshee-data/walkpal/internal/hazard"
	"github.com/banshee-data/walkpal/internal/monitoring"
)

var ErrNotConnected = errors.New("wearable not connected")

// Link is the wearable transport used by the alert dispatcher. It holds the
// current mux and swaps it when the device is plugged or unplugged. With no
// device path configured it wraps a DisabledSerialMux and drops commands
// silently.
type Link struct {
	path    string
	opts    PortOptions
	factory SerialPortFactory
	state   *DeviceState

	mu        sync.RWMutex
	mux       SerialMuxInterface
	connected bool
	cancel    context.CancelFunc
}

// NewLink returns a disconnected link for the device at path.
func NewLink(path string, opts PortOptions, factory SerialPortFactory) *Link {
	if factory == nil {
		factory = RealPortFactory
	}
	return &Link{
		path:    path,
		opts:    opts,
		factory: factory,
		state:   NewDeviceState(),
		mux:     NewDisabledSerialMux(),
	}
}

// Path returns the configured device path ("" when disabled).
func (l *Link) Path() string { return l.path }

// State returns what the device has reported about itself.
func (l *Link) State() *DeviceState { return l.state }

// Connected reports whether a device mux is attached.
func (l *Link) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Connect opens the configured device and attaches it. It is a no-op when
// no device is configured.
func (l *Link) Connect(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	port, err := l.factory.Open(l.path, l.opts)
	if err != nil {
		return fmt.Errorf("wearable link: %w", err)
	}
	return l.Attach(ctx, NewSerialMux(port))
}

// Attach initialises m, makes it the current mux and starts monitoring it.
// Any previously attached mux is closed.
func (l *Link) Attach(ctx context.Context, m SerialMuxInterface) error {
	if err := m.Initialise(); err != nil {
		m.Close()
		return fmt.Errorf("wearable link: %w", err)
	}

	mctx, cancel := context.WithCancel(ctx)
	_, lines := m.Subscribe()
	go l.state.Consume(lines)

	l.mu.Lock()
	old, oldCancel := l.mux, l.cancel
	l.mux, l.cancel, l.connected = m, cancel, true
	l.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if old != nil {
		old.Close()
	}
	monitoring.Logf("[wearable] link up on %s", l.describe())

	go func() {
		err := m.Monitor(mctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("[wearable] monitor stopped: %v", err)
		}
		l.detach(m)
	}()
	return nil
}

func (l *Link) describe() string {
	if l.path == "" {
		return "mock device"
	}
	return l.path
}

// detach drops m if it is still current.
func (l *Link) detach(m SerialMuxInterface) {
	l.mu.Lock()
	if l.mux != m {
		l.mu.Unlock()
		return
	}
	cancel, wasConnected := l.cancel, l.connected
	l.mux, l.cancel, l.connected = NewDisabledSerialMux(), nil, false
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.Close()
	if wasConnected {
		monitoring.Logf("[wearable] link down on %s", l.describe())
	}
}

// Disconnect closes the current device mux, if any.
func (l *Link) Disconnect() {
	l.mu.RLock()
	m := l.mux
	l.mu.RUnlock()
	l.detach(m)
}

// Send implements alert.Transport.
func (l *Link) Send(cmd hazard.Command) error {
	l.mu.RLock()
	m, connected := l.mux, l.connected
	l.mu.RUnlock()
	if !connected && l.path != "" {
		return ErrNotConnected
	}
	return m.Send(cmd)
}

// SendCommand parses and sends a textual command.
func (l *Link) SendCommand(command string) error {
	cmd, err := hazard.ParseCommand(command)
	if err != nil {
		return err
	}
	return l.Send(cmd)
}

func (l *Link) current() SerialMuxInterface {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mux
}

func (l *Link) Subscribe() (string, chan string) { return l.current().Subscribe() }

func (l *Link) Unsubscribe(id string) { l.current().Unsubscribe(id) }

func (l *Link) Initialise() error { return l.current().Initialise() }

// Monitor blocks until ctx is done; the attached mux is monitored internally.
func (l *Link) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close detaches the device and releases the link.
func (l *Link) Close() error {
	l.Disconnect()
	return l.current().Close()
}

func (l *Link) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, l)
}
