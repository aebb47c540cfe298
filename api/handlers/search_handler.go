package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/trackfetch-go/internal/app"
	"go.uber.org/zap"
)

// SearchHandler previews discovery without enqueuing
type SearchHandler struct {
	queueMgr *app.QueueManager
	logger   *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(queueMgr *app.QueueManager, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{queueMgr: queueMgr, logger: logger}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := req.Query()
	ranked, err := h.queueMgr.Search(c.Request.Context(), query)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("Search failed", zap.String("query", query.Text()), zap.Error(err))
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":      query,
		"candidates": ranked,
		"count":      len(ranked),
	})
}
