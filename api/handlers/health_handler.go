package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/klyp/klyp-go/internal/queue"
	"github.com/klyp/klyp-go/internal/service"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	store   *queue.Store
	service *service.DownloadService
}

// NewHealthHandler creates a health handler
func NewHealthHandler(store *queue.Store, svc *service.DownloadService) *HealthHandler {
	return &HealthHandler{store: store, service: svc}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Tasks  int `json:"tasks"`
		Active int `json:"active"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}
	response.Queue.Tasks = h.store.Count()
	response.Queue.Active = h.service.ActiveCount()
	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
