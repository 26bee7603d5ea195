package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// RealPortFactory opens ports through go.bug.st/serial.
var RealPortFactory SerialPortFactory = SerialPortOpener(func(path string, opts PortOptions) (SerialPorter, error) {
	return openSerial(path, opts)
})

func openSerial(path string, opts PortOptions) (serial.Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialMux opens path directly, outside any Link. walkpal-tools
// uses it to poke the wearable while the daemon is stopped.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	port, err := openSerial(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
