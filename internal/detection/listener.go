package detection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/banshee-data/walkpal/internal/monitoring"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 64 * 1024

// Submitter accepts decoded frames. It must not block.
type Submitter interface {
	Submit(FrameResult) bool
}

// ListenerStats are cumulative datagram counters.
type ListenerStats struct {
	Datagrams    int64 `json:"datagrams"`
	DecodeErrors int64 `json:"decode_errors"`
	Rejected     int64 `json:"rejected"`
}

// UDPListener receives detection datagrams and submits them.
type UDPListener struct {
	address string
	rcvBuf  int
	sink    Submitter
	conn    *net.UDPConn

	datagrams    atomic.Int64
	decodeErrors atomic.Int64
	rejected     atomic.Int64
}

// UDPListenerConfig configures a UDPListener. RcvBuf of zero keeps the
// kernel default.
type UDPListenerConfig struct {
	Address string
	RcvBuf  int
	Sink    Submitter
}

func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	return &UDPListener{address: cfg.Address, rcvBuf: cfg.RcvBuf, sink: cfg.Sink}
}

// Listen binds the socket. Start calls it when the caller has not.
func (l *UDPListener) Listen() error {
	if l.conn != nil {
		return nil
	}
	laddr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", l.address, err)
	}
	if l.conn, err = net.ListenUDP("udp", laddr); err != nil {
		return fmt.Errorf("listen %s: %w", laddr, err)
	}
	if l.rcvBuf > 0 {
		if err := l.conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("[detection] SO_RCVBUF %d rejected: %v", l.rcvBuf, err)
		}
	}
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *UDPListener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start receives datagrams until ctx is done, then closes the socket.
func (l *UDPListener) Start(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer func() {
		if stop() {
			l.conn.Close()
		}
	}()

	monitoring.Logf("[detection] listening on %s", l.conn.LocalAddr())
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				monitoring.Logf("[detection] listener stopped")
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			monitoring.Logf("[detection] read: %v", err)
			continue
		}
		if err := l.HandleDatagram(buf[:n]); err != nil {
			monitoring.Logf("[detection] datagram from %v: %v", from, err)
		}
	}
}

// HandleDatagram decodes and submits one datagram.
func (l *UDPListener) HandleDatagram(b []byte) error {
	l.datagrams.Add(1)
	fr, err := Decode(b)
	if err != nil {
		l.decodeErrors.Add(1)
		return err
	}
	if !l.sink.Submit(fr) {
		l.rejected.Add(1)
	}
	return nil
}

// Stats returns the cumulative counters.
func (l *UDPListener) Stats() ListenerStats {
	return ListenerStats{
		Datagrams:    l.datagrams.Load(),
		DecodeErrors: l.decodeErrors.Load(),
		Rejected:     l.rejected.Load(),
	}
}
