package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/radar/internal/models"
)

// handleScan opens a scan. Snapshot mode answers with one JSON document
// after the scan completes; every other mode streams NDJSON.
func (s *Server) handleScan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	mode := models.ParseMode(req.Mode)
	if mode == models.ModeSnapshot {
		s.snapshotScan(c, req)
		return
	}
	s.streamScan(c, req, mode)
}

func (s *Server) snapshotScan(c *gin.Context, req models.ScanRequest) {
	sigs, err := s.orchestrator.Snapshot(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs})
}

// streamScan writes one JSON line per event, flushing after each so the
// client sees signals as they are discovered. The stream has no terminator
// token; the response body closing means done. A client disconnect cancels
// the request context, which cancels the scan.
func (s *Server) streamScan(c *gin.Context, req models.ScanRequest, mode models.Mode) {
	session, events := s.orchestrator.Scan(c.Request.Context(), req)

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for ev := range events {
		if err := enc.Encode(ev.Line(mode)); err != nil {
			s.log.Debug("scan stream closed by client", "session", session.ID, "error", err)
			return
		}
		c.Writer.Flush()
	}
	s.log.Debug("scan stream complete", "session", session.ID, "state", session.State())
}
