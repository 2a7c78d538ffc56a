package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/radar/internal/models"
	"github.com/raphaelgruber/radar/internal/store"
)

func (s *Server) handleListSignals(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	sigs, err := s.gateway.ListSignals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs})
}

// statusUpdate is the wire shape of a status transition.
type statusUpdate struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var upd statusUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := models.ParseStatus(upd.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	url := models.NormalizeURL(upd.URL)
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid signal url is required"})
		return
	}

	err = s.gateway.UpdateStatus(c.Request.Context(), url, status)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no saved signal for that url"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "status": status})
}

// clusterRequest carries the signal set to group. An empty set clusters
// everything saved.
type clusterRequest struct {
	Signals []models.Signal `json:"signals"`
}

func (s *Server) handleCluster(c *gin.Context) {
	var req clusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signals := req.Signals
	if len(signals) == 0 {
		saved, err := s.gateway.ListSignals(c.Request.Context(), 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		signals = saved
	}

	set := s.clusterer.Cluster(c.Request.Context(), signals)
	resp := gin.H{"themes": set.Themes}
	if set.ID != "" {
		resp["scan_id"] = set.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetThemes(c *gin.Context) {
	set, err := s.gateway.GetThemes(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no theme set with that id"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, set)
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Snapshot())
}
