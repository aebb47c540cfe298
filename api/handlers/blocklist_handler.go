package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/trackfetch-go/internal/domain"
	"go.uber.org/zap"
)

// BlocklistHandler manages peers the safety gate always rejects
type BlocklistHandler struct {
	repo   domain.BlockListRepository
	logger *zap.Logger
}

// NewBlocklistHandler creates a new block list handler
func NewBlocklistHandler(repo domain.BlockListRepository, logger *zap.Logger) *BlocklistHandler {
	return &BlocklistHandler{repo: repo, logger: logger}
}

// BlockRequest represents a request to block a peer
type BlockRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
	Reason string `json:"reason,omitempty"`
}

// List handles GET /api/v1/blocklist
func (h *BlocklistHandler) List(c *gin.Context) {
	peers, err := h.repo.List()
	if err != nil {
		h.logger.Error("Failed to list blocked peers", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers, "count": len(peers)})
}

// Block handles POST /api/v1/blocklist
func (h *BlocklistHandler) Block(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.Block(req.PeerID, req.Reason); err != nil {
		h.logger.Error("Failed to block peer", zap.String("peer", req.PeerID), zap.Error(err))
		respondError(c, err)
		return
	}

	h.logger.Info("Peer blocked", zap.String("peer", req.PeerID), zap.String("reason", req.Reason))
	c.JSON(http.StatusCreated, gin.H{"peer_id": req.PeerID, "reason": req.Reason})
}

// Unblock handles DELETE /api/v1/blocklist/:peer
func (h *BlocklistHandler) Unblock(c *gin.Context) {
	peer := c.Param("peer")
	if !h.repo.IsBlocked(peer) {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer is not blocked"})
		return
	}

	if err := h.repo.Unblock(peer); err != nil {
		h.logger.Error("Failed to unblock peer", zap.String("peer", peer), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "peer unblocked", "peer_id": peer})
}
