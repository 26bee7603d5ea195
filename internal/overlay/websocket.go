package overlay

import (
	"net/http"
	"time"

	"github.com/banshee-data/walkpal/internal/monitoring"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// WebsocketHandler streams snapshots as JSON text messages. The latest
// snapshot, if any, is sent immediately on connect.
func (p *Publisher) WebsocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ch, err := p.Subscribe("ws")
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer p.Unsubscribe(id)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			monitoring.Logf("[overlay] websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		// The reader only services control frames and notices the close.
		closed := make(chan struct{})
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						monitoring.Logf("[overlay] websocket %s read error: %v", id, err)
					}
					return
				}
			}
		}()

		if snap, ok := p.Latest(); ok {
			if err := writeSnapshot(conn, snap); err != nil {
				return
			}
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case snap, ok := <-ch:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
					return
				}
				if err := writeSnapshot(conn, snap); err != nil {
					monitoring.Logf("[overlay] websocket %s write error: %v", id, err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}
