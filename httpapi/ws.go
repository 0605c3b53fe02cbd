package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexus-shell/crag/rotation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type streamMessage struct {
	Kind      string               `json:"kind"`
	Added     []rotation.FeatureID `json:"added,omitempty"`
	Removed   []rotation.FeatureID `json:"removed,omitempty"`
	Tier      string               `json:"tier"`
	Timestamp int64                `json:"timestamp"`
}

// handleStream upgrades to a WebSocket connection and pushes every
// rotate/tier_change event as it is published, until the client
// disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("httpapi: websocket upgrade failed")
		return
	}
	defer conn.Close()

	msgs := make(chan streamMessage, 16)
	unsubscribe := s.state.Subscribe(func(evt rotation.Event) {
		msg := streamMessage{
			Kind:      string(evt.Kind),
			Added:     evt.Delta.Added,
			Removed:   evt.Delta.Removed,
			Tier:      evt.State.Tier.String(),
			Timestamp: time.Now().UnixMilli(),
		}
		select {
		case msgs <- msg:
		default:
			// Slow consumer: drop rather than block the publisher, since
			// RotationDispatcher calls this subscriber synchronously.
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-msgs:
			raw, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}
