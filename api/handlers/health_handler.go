package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/trackfetch-go/internal/app"
)

// Version is reported by the health endpoint
var Version = "dev"

const upstreamPingTimeout = 2 * time.Second

// Pinger checks that the peer network daemon answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	queueMgr *app.QueueManager
	upstream Pinger
}

// NewHealthHandler creates a health handler. upstream may be nil.
func NewHealthHandler(queueMgr *app.QueueManager, upstream Pinger) *HealthHandler {
	return &HealthHandler{
		queueMgr: queueMgr,
		upstream: upstream,
	}
}

// QueueHealth summarizes dispatch and the latest monitor tick
type QueueHealth struct {
	Running       bool `json:"running"`
	MaxConcurrent int  `json:"max_concurrent"`
	Stalled       int  `json:"stalled"`
	Zombies       int  `json:"zombies"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status   string      `json:"status"`
	Version  string      `json:"version"`
	Upstream string      `json:"upstream,omitempty"`
	Queue    QueueHealth `json:"queue"`
}

// upstreamStatus returns "ok", "unreachable" or "" when no upstream is set
func (h *HealthHandler) upstreamStatus(ctx context.Context) string {
	if h.upstream == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, upstreamPingTimeout)
	defer cancel()
	if err := h.upstream.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}

// Health handles GET /health. The process is alive even when slskd is not.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.queueMgr.Health()
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Upstream: h.upstreamStatus(c.Request.Context()),
		Queue: QueueHealth{
			Running:       h.queueMgr.IsRunning(),
			MaxConcurrent: h.queueMgr.MaxConcurrent(),
			Stalled:       report.Stalled,
			Zombies:       report.Zombies,
		},
	})
}

// Ready handles GET /ready: dispatch must be running and slskd reachable
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.queueMgr.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "job dispatch not running"})
		return
	}
	if h.upstreamStatus(c.Request.Context()) == "unreachable" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "slskd unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
