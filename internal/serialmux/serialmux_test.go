package serialmux

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/walkpal/internal/hazard"
)

func recvLine(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
	return ""
}

func TestSend_WritesRawCommand(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)

	if err := m.Send(hazard.Command{A: 3, B: 3, C: 3}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := string(port.GetWrittenData()); got != "3,3,3#" {
		t.Errorf("written = %q, want %q", got, "3,3,3#")
	}
}

func TestSend_WriteError(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteError = errors.New("device gone")
	m := NewSerialMux(port)

	err := m.Send(hazard.Clear)
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Send() error = %v, want ErrWriteFailed", err)
	}
}

type shortWriter struct{ *TestableSerialPort }

func (s shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestSend_ShortWrite(t *testing.T) {
	m := NewSerialMux(shortWriter{NewTestableSerialPort()})
	if err := m.Send(hazard.Clear); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Send() error = %v, want ErrWriteFailed", err)
	}
}

func TestSendCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
		wantErr bool
	}{
		{"terminated", "1,0,1#", "1,0,1#", false},
		{"unterminated", "0,0,2", "0,0,2#", false},
		{"spaces", " 3, 1, 3 #", "3,1,3#", false},
		{"too few fields", "1,0#", "", true},
		{"out of range", "1,0,12#", "", true},
		{"radar style", "OJ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewTestableSerialPort()
			m := NewSerialMux(port)
			err := m.SendCommand(tt.command)
			if tt.wantErr {
				if !errors.Is(err, hazard.ErrMalformedCommand) {
					t.Errorf("SendCommand(%q) error = %v, want ErrMalformedCommand", tt.command, err)
				}
				if port.WriteCalls != 0 {
					t.Errorf("malformed command reached the port")
				}
				return
			}
			if err != nil {
				t.Fatalf("SendCommand(%q) error = %v", tt.command, err)
			}
			if got := string(port.GetWrittenData()); got != tt.want {
				t.Errorf("written = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInitialise_SendsClear(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)

	if err := m.Initialise(); err != nil {
		t.Fatalf("Initialise() error = %v", err)
	}
	if got := string(port.GetWrittenData()); got != "0,0,0#" {
		t.Errorf("written = %q, want %q", got, "0,0,0#")
	}
}

func TestScanDeviceLines(t *testing.T) {
	input := "1,0,1#0,0,0#\r\nfw v1.2\n\n{\"battery\":81}\npartial"
	scan := bufio.NewScanner(strings.NewReader(input))
	scan.Split(ScanDeviceLines)

	var got []string
	for scan.Scan() {
		got = append(got, scan.Text())
	}
	want := []string{"1,0,1#", "0,0,0#", "fw v1.2", `{"battery":81}`, "partial"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMonitor_FansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	m := NewSerialMux(port)

	_, a := m.Subscribe()
	_, b := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Monitor(ctx) }()

	port.AddReadData([]byte("3,3,3#\nready\n"))

	for _, ch := range []chan string{a, b} {
		if got := recvLine(t, ch); got != "3,3,3#" {
			t.Errorf("first line = %q", got)
		}
		if got := recvLine(t, ch); got != "ready" {
			t.Errorf("second line = %q", got)
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	m.Close()
}

func TestMonitor_ReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("usb reset")
	m := NewSerialMux(port)

	err := m.Monitor(context.Background())
	if err == nil || !strings.Contains(err.Error(), "usb reset") {
		t.Errorf("Monitor() error = %v, want read error", err)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	m := NewSerialMux(NewTestableSerialPort())
	id, ch := m.Subscribe()
	m.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	// second call is a no-op
	m.Unsubscribe(id)
}

func TestClose_ClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	_, ch := m.Subscribe()

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	if !port.Closed {
		t.Error("port not closed")
	}
}

func TestSubscribe_AfterClose(t *testing.T) {
	m := NewSerialMux(NewTestableSerialPort())
	m.Close()
	_, ch := m.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("subscription after Close should be closed")
	}
}

func TestMonitor_StopsAfterClose(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	m := NewSerialMux(port)

	done := make(chan error, 1)
	go func() { done <- m.Monitor(context.Background()) }()
	m.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
}
