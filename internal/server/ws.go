package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

const relayBuffer = 64

// handleWS relays the live feed to local websocket clients. Slow clients
// miss frames rather than stall the feed.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Feed == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "live feed not available")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	upstream := s.connection()
	hello := ConnectionEvent{
		Event:     newEvent("connection", time.Now().UTC()),
		Connected: true,
		Upstream:  upstream.State,
		Attempt:   upstream.Attempt,
	}
	if payload, err := json.Marshal(hello); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	ch, unsubscribe := s.deps.Feed.SubscribeChan(relayBuffer)
	defer unsubscribe()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			payload, err := protocol.Encode(msg)
			if err != nil {
				s.log.Debug().Err(err).Msg("relay encode failed")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			s.deps.Metrics.IncMessage("relay", string(msg.Kind()))
		}
	}
}
