package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/klyp/klyp-go/internal/history"
)

// HistoryHandler exposes download history over HTTP
type HistoryHandler struct {
	store *history.Store
}

// NewHistoryHandler creates a history handler
func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// ListHistory handles GET /history with optional q, platform and limit
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	if q := c.Query("q"); q != "" {
		entries, err := h.store.Search(q)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}
	if platform := c.Query("platform"); platform != "" {
		entries, err := h.store.ByPlatform(platform)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := h.store.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GetStats handles GET /history/stats
func (h *HistoryHandler) GetStats(c *gin.Context) {
	count, err := h.store.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	size, err := h.store.TotalSize()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "total_size_bytes": size})
}

// DeleteEntry handles DELETE /history/:id
func (h *HistoryHandler) DeleteEntry(c *gin.Context) {
	if err := h.store.Remove(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ClearHistory handles DELETE /history
func (h *HistoryHandler) ClearHistory(c *gin.Context) {
	if err := h.store.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
