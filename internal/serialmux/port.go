package serialmux

import "io"

// SerialPorter is what the mux needs from a port. serial.Port satisfies it
// and so do the in-memory ports in mock.go.
type SerialPorter interface {
	io.ReadWriteCloser
}

// SerialPortFactory opens serial ports. The daemon reopens the wearable
// through it on every hotplug add.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// SerialPortOpener adapts a function to SerialPortFactory.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)

func (f SerialPortOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	return f(path, opts)
}
