package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/banshee-data/walkpal/internal/hazard"
)

// EchoPort is a loopback SerialPorter that behaves like the wearable
// firmware in echo mode: every complete command written is read back,
// followed by a newline. It backs the daemon's -mock-wearable mode.
type EchoPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	pending []byte
	closed  bool
}

// NewEchoPort returns an open loopback port.
func NewEchoPort() *EchoPort {
	r, w := io.Pipe()
	return &EchoPort{r: r, w: w}
}

func (e *EchoPort) Read(p []byte) (int, error) { return e.r.Read(p) }

func (e *EchoPort) Write(p []byte) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, errors.New("serial port closed")
	}
	e.pending = append(e.pending, p...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(e.pending, hazard.CommandTerminator[0])
		if i < 0 {
			break
		}
		lines = append(lines, append(append([]byte(nil), e.pending[:i+1]...), '\n'))
		e.pending = e.pending[i+1:]
	}
	e.mu.Unlock()

	// Echo asynchronously so a writer is never blocked on a reader.
	if len(lines) > 0 {
		go func() {
			for _, l := range lines {
				if _, err := e.w.Write(l); err != nil {
					return
				}
			}
		}()
	}
	return len(p), nil
}

func (e *EchoPort) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.w.Close()
	return e.r.Close()
}

// NewMockSerialMux creates a SerialMux backed by an EchoPort.
func NewMockSerialMux() *SerialMux[*EchoPort] {
	return NewSerialMux(NewEchoPort())
}

// TestableSerialPort is a scripted SerialPorter for tests. Reads drain
// AddReadData input; writes are captured for GetWrittenData.
type TestableSerialPort struct {
	mu   sync.Mutex
	cond *sync.Cond
	in   bytes.Buffer
	out  bytes.Buffer

	// ReadError and WriteError fail the next call once, then clear.
	ReadError  error
	WriteError error
	// BlockReads makes Read wait for data instead of returning io.EOF.
	BlockReads bool

	Closed     bool
	WriteCalls int
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

var errPortClosed = errors.New("serial port closed")

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ReadError; err != nil {
		p.ReadError = nil
		return 0, err
	}
	for p.BlockReads && !p.Closed && p.in.Len() == 0 {
		p.cond.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.in.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteCalls++
	if p.Closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	return p.out.Write(b)
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	p.Closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return nil
}

// AddReadData queues bytes as if the wearable had sent them.
func (p *TestableSerialPort) AddReadData(b []byte) {
	p.mu.Lock()
	p.in.Write(b)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// GetWrittenData returns a copy of everything written so far.
func (p *TestableSerialPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

// MockSerialPortFactory hands out a fixed port and records each Open.
type MockSerialPortFactory struct {
	mu        sync.Mutex
	Port      SerialPorter
	Error     error
	OpenCalls []MockOpenCall
}

type MockOpenCall struct {
	Path string
	Opts PortOptions
}

func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

func (f *MockSerialPortFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}

// SetPort changes what later Open calls return, e.g. a replugged device.
func (f *MockSerialPortFactory) SetPort(port SerialPorter, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Port, f.Error = port, err
}
