package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is same-origin; the session cookie already gates access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 30 * time.Second
)

// handleLive streams device-data snapshots over a websocket. A full
// snapshot is sent on connect and after every state change; changes are
// coalesced, so a burst of updates produces one fresh snapshot.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("[API] Live upgrade failed: %v", err)
		}
		return
	}
	defer conn.Close()

	watchID, changes := s.store.Watch()
	defer s.store.Unwatch(watchID)

	// Reader goroutine: we never expect client data, but reading is how
	// close frames surface.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeSnapshot(conn); err != nil {
		return
	}

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-changes:
			if err := s.writeSnapshot(conn); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeSnapshot(conn *websocket.Conn) error {
	sensors, actuators := s.store.Snapshot()
	conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(map[string]interface{}{
		"sensors":         sensors,
		"actuators":       actuators,
		"command_history": s.history.Tail(historyLimit),
	})
}
