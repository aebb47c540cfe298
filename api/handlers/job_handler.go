package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/trackfetch-go/internal/app"
	"github.com/yourusername/trackfetch-go/internal/domain"
	"go.uber.org/zap"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	queueMgr *app.QueueManager
	logger   *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(queueMgr *app.QueueManager, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		queueMgr: queueMgr,
		logger:   logger,
	}
}

// TrackRequest represents a request for one track
type TrackRequest struct {
	Artist          string  `json:"artist"`
	Title           string  `json:"title"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	BPM             float64 `json:"bpm,omitempty"`
	Key             string  `json:"key,omitempty"`
}

// Query converts the request body to a track query
func (r TrackRequest) Query() domain.TrackQuery {
	return domain.TrackQuery{
		Artist:          r.Artist,
		Title:           r.Title,
		DurationSeconds: r.DurationSeconds,
		BPM:             r.BPM,
		Key:             r.Key,
	}
}

// RequestTrack handles POST /api/v1/jobs
func (h *JobHandler) RequestTrack(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queueMgr.RequestTrack(c.Request.Context(), req.Query())
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("Failed to request track", zap.String("query", req.Query().Text()), zap.Error(err))
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	state := domain.JobState(c.Query("state"))
	if state != "" && !domain.ValidateState(state) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	jobs := h.queueMgr.ListJobs(state)
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.queueMgr.GetJob(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob handles POST /api/v1/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.queueMgr.CancelJob(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job cancelled", "id": id})
}

// DeleteJob handles DELETE /api/v1/jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.queueMgr.RemoveJob(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job removed", "id": id})
}

// CancelAll handles POST /api/v1/jobs/cancel-all
func (h *JobHandler) CancelAll(c *gin.Context) {
	count := h.queueMgr.CancelAll()
	c.JSON(http.StatusOK, gin.H{"cancelled": count})
}

// Resume handles POST /api/v1/jobs/resume
func (h *JobHandler) Resume(c *gin.Context) {
	if err := h.queueMgr.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dispatch resumed"})
}

// GetStats handles GET /api/v1/jobs/stats
func (h *JobHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queueMgr.Stats())
}

// GetHealth handles GET /api/v1/jobs/health
func (h *JobHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.queueMgr.Health())
}

// GetHistory handles GET /api/v1/jobs/history
func (h *JobHandler) GetHistory(c *gin.Context) {
	state := domain.JobState(c.Query("state"))
	if state != "" && !domain.ValidateState(state) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		limit = 100
	}

	records, err := h.queueMgr.History(state, limit)
	if err != nil {
		h.logger.Error("Failed to read job history", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}
