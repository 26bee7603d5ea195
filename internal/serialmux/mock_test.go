package serialmux

import (
	"bufio"
	"errors"
	"testing"
	"time"
)

func TestEchoPort_EchoesCompleteCommands(t *testing.T) {
	p := NewEchoPort()
	defer p.Close()

	// Split writes are buffered until the terminator arrives.
	if _, err := p.Write([]byte("1,0")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := p.Write([]byte(",1#0,0,0#")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r := bufio.NewReader(p)
	lines := make(chan string, 2)
	go func() {
		for i := 0; i < 2; i++ {
			l, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- l
		}
	}()

	for _, want := range []string{"1,0,1#\n", "0,0,0#\n"} {
		select {
		case got := <-lines:
			if got != want {
				t.Errorf("echo = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestEchoPort_WriteAfterClose(t *testing.T) {
	p := NewEchoPort()
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := p.Write([]byte("0,0,0#")); err == nil {
		t.Error("expected error writing to closed port")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestTestableSerialPort_Errors(t *testing.T) {
	p := NewTestableSerialPort()
	p.WriteError = errors.New("boom")
	if _, err := p.Write([]byte("x")); err == nil {
		t.Error("expected write error")
	}
	if _, err := p.Write([]byte("x")); err != nil {
		t.Errorf("write error should be one-shot, got %v", err)
	}
	p.Close()
	if _, err := p.Read(make([]byte, 1)); err == nil {
		t.Error("expected read error after close")
	}
}

func TestMockSerialPortFactory(t *testing.T) {
	port := NewTestableSerialPort()
	f := NewMockSerialPortFactory(port)

	got, err := f.Open("/dev/ttyX", PortOptions{BaudRate: 9600})
	if err != nil || got != port {
		t.Fatalf("Open() = %v, %v", got, err)
	}
	f.SetPort(nil, errors.New("gone"))
	if _, err := f.Open("/dev/ttyX", PortOptions{}); err == nil {
		t.Error("expected error")
	}
	if f.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", f.Calls())
	}
}
