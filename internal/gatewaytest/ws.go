package gatewaytest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cabsync/cabsync/internal/gateway"
)

// pushFrame is one websocket broadcast: the event type tag plus the full
// ride and notification records, letting clients apply state directly
// instead of waiting for the next poll.
type pushFrame struct {
	Type         string                `json:"type"`
	Ride         *gateway.Ride         `json:"ride,omitempty"`
	Notification *gateway.Notification `json:"notification,omitempty"`
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.wsMu.Lock()
	g.conns[conn] = struct{}{}
	g.wsMu.Unlock()

	// Drain the connection until the client goes away.
	go func() {
		defer g.dropWS(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (g *Gateway) dropWS(conn *websocket.Conn) {
	g.wsMu.Lock()
	delete(g.conns, conn)
	g.wsMu.Unlock()
	_ = conn.Close()
}

func (g *Gateway) broadcast(frameType string, ride gateway.Ride, notification gateway.Notification) {
	data, err := json.Marshal(pushFrame{Type: frameType, Ride: &ride, Notification: &notification})
	if err != nil {
		return
	}
	g.BroadcastRaw(data)
}

// BroadcastRaw sends an arbitrary text frame to every connected client.
// Tests use it to deliver typeless and malformed frames.
func (g *Gateway) BroadcastRaw(data []byte) {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()
	for conn := range g.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(g.conns, conn)
			_ = conn.Close()
		}
	}
}

// CloseConnections drops every websocket client, simulating connection loss.
func (g *Gateway) CloseConnections() {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()
	for conn := range g.conns {
		_ = conn.Close()
		delete(g.conns, conn)
	}
}

// ConnectionCount reports how many websocket clients are attached.
func (g *Gateway) ConnectionCount() int {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()
	return len(g.conns)
}
