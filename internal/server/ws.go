package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/radar/internal/models"
)

// closeGrace bounds the close handshake after the last event.
const closeGrace = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins for local dev
	},
}

// handleScanWS speaks the scan stream over a WebSocket: the client sends one
// ScanRequest as its first message and receives one JSON text message per
// event. Proxies that buffer chunked responses cannot starve this path.
func (s *Server) handleScanWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req models.ScanRequest
	if err := conn.ReadJSON(&req); err != nil {
		closeWS(conn, "invalid scan request")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		closeWS(conn, "topic is required")
		return
	}

	// The upgrade hijacks the connection, so the request context no longer
	// ends on disconnect. A read pump watches for the client going away.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	mode := models.ParseMode(req.Mode)
	session, events := s.orchestrator.Scan(ctx, req)
	for ev := range events {
		if err := conn.WriteJSON(ev.Line(mode)); err != nil {
			s.log.Debug("websocket stream closed by client", "session", session.ID, "error", err)
			return
		}
	}

	closeWS(conn, "")
	s.log.Debug("websocket stream complete", "session", session.ID, "state", session.State())
}

// closeWS sends an optional error line and the close frame.
func closeWS(conn *websocket.Conn, errMsg string) {
	if errMsg != "" {
		_ = conn.WriteJSON(models.StreamLine{Status: models.LineError, Msg: errMsg})
	}
	deadline := time.Now().Add(closeGrace)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
