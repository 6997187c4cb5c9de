package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// statsEvent is one frame of the /events stream.
type statsEvent struct {
	Type  string    `json:"type"`
	Time  time.Time `json:"time"`
	Stats Stats     `json:"stats"`
}

// handleEvents streams live relay statistics over a WebSocket.
// GET /events
//
// One stats frame is pushed immediately on connect and another every
// StreamInterval until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}

	// Disable write deadline for long-lived WebSocket connections
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"relay-events"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain incoming frames so control messages are handled and a
	// client close ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	interval := s.cfg.StreamInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.writeStatsFrame(ctx, conn); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// writeStatsFrame sends one stats snapshot on the WebSocket.
func (s *Server) writeStatsFrame(ctx context.Context, conn *websocket.Conn) error {
	event := statsEvent{
		Type:  "stats",
		Time:  time.Now().UTC(),
		Stats: s.provider.Stats(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
