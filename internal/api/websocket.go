package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds each frame written to a websocket client.
const wsWriteTimeout = 10 * time.Second

// WSMessage is a frame of the /v1/ws protocol. Clients send
// {"type":"query","id":...,"query":...}; the server answers each with
// an "answer" or "error" frame carrying the same id. Queries on one
// connection run in order.
type WSMessage struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	Query     string   `json:"query,omitempty"`
	Answer    string   `json:"answer,omitempty"`
	HTML      string   `json:"html,omitempty"`
	ElapsedMS int64    `json:"elapsed_ms,omitempty"`
	Error     *WSError `json:"error,omitempty"`
}

// WSError mirrors the JSON error body of the HTTP endpoints.
type WSError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   4096,
	WriteBufferSize:  64 * 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Hijacked connections keep the server's request deadlines.
	conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(maxQueryBytes)

	ctx := r.Context()
	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Debug("websocket client connected")

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket client closed")
			} else {
				logger.Debug("websocket read error", "error", err)
			}
			return
		}

		reply := s.answerFrame(r, msg)
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Debug("websocket write error", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// answerFrame runs one query frame and builds the reply.
func (s *Server) answerFrame(r *http.Request, msg WSMessage) WSMessage {
	fail := func(code int, message string) WSMessage {
		return WSMessage{Type: "error", ID: msg.ID, Error: &WSError{Message: message, Code: code}}
	}

	if msg.Type != "query" {
		return fail(http.StatusBadRequest, fmt.Sprintf("unsupported message type %q", msg.Type))
	}
	query := strings.TrimSpace(msg.Query)
	if query == "" {
		return fail(http.StatusBadRequest, "query is required")
	}

	start := time.Now()
	answer, err := s.backend.Ask(r.Context(), query)
	if err != nil {
		code := statusFor(err)
		if code >= 500 {
			s.logger.Error("query failed", "error", err, "transport", "websocket")
		}
		return fail(code, err.Error())
	}
	return WSMessage{
		Type:      "answer",
		ID:        msg.ID,
		Answer:    answer,
		HTML:      s.renderHTML(answer),
		ElapsedMS: time.Since(start).Milliseconds(),
	}
}
