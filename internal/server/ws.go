package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsReadLimit    = 512 * 1024 // 512KB max message size
	wsIdleTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleWebsocket upgrades the connection and answers every text message
// with a SelectResponse or an ErrorResponse, in order.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Warn().Err(err).Msg("websocket upgrade failed")
		if s.metrics != nil {
			s.metrics.HTTPRequestInc("/ws/select", http.StatusBadRequest)
		}
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.HTTPRequestInc("/ws/select", http.StatusSwitchingProtocols)
		s.metrics.WSSessionsAdd(1)
		defer s.metrics.WSSessionsAdd(-1)
	}

	conn.SetReadLimit(wsReadLimit)
	log.Debug().Str("remote", r.RemoteAddr).Msg("websocket session opened")

	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			log.Debug().Str("remote", r.RemoteAddr).Msg("websocket session closed")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var reply interface{}
		var req SelectRequest
		if err := json.Unmarshal(data, &req); err != nil {
			reply = ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err)}
		} else if resp, err := s.process(r.Context(), &req); err != nil {
			reply = ErrorResponse{Error: err.Error(), RequestID: req.RequestID}
		} else {
			reply = resp
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Msg("websocket write error")
			return
		}
	}
}
