package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// wsFrame is the JSON reply to one websocket text frame.
type wsFrame struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleWebsocket runs one turn per text frame on the conversation in the path
// until the client goes away.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "conversation", id, "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debug("websocket read ended", "conversation", id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			if err := conn.WriteJSON(wsFrame{Error: "only text frames are supported"}); err != nil {
				return
			}
			continue
		}

		input := strings.TrimSpace(string(data))
		if input == "" {
			continue
		}

		var frame wsFrame
		reply, err := s.agent.Process(ctx, id, input)
		if err != nil {
			s.logger.Error("process error", "conversation", id, "err", err)
			frame.Error = err.Error()
		} else {
			frame.Reply = reply
		}
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Warn("websocket write failed", "conversation", id, "error", err)
			return
		}
	}
}
