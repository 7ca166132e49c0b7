package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/internal/domain"
	"github.com/klyp/klyp-go/internal/queue"
	"github.com/klyp/klyp-go/internal/service"
)

// QueueHandler exposes the download queue over HTTP
type QueueHandler struct {
	store    *queue.Store
	service  *service.DownloadService
	settings SettingsProvider
	log      *zap.Logger
}

// SettingsProvider is the slice of the settings store the handlers read
type SettingsProvider interface {
	GetDownloadDirectory() string
	GetBool(key string) bool
}

// NewQueueHandler creates a queue handler
func NewQueueHandler(store *queue.Store, svc *service.DownloadService, settings SettingsProvider, log *zap.Logger) *QueueHandler {
	return &QueueHandler{store: store, service: svc, settings: settings, log: log}
}

// AddDownloadRequest is the body of POST /downloads
type AddDownloadRequest struct {
	URL               string `json:"url" binding:"required"`
	Title             string `json:"title"`
	SelectedQuality   string `json:"selected_quality"`
	FilenameHint      string `json:"filename"`
	DownloadSubtitles *bool  `json:"download_subtitles"`
	DownloadPath      string `json:"download_path"`
	Start             bool   `json:"start"`
}

// AddDownload handles POST /downloads
func (h *QueueHandler) AddDownload(c *gin.Context) {
	var req AddDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	descriptor, err := domain.NewVideoDescriptor(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	descriptor.Title = req.Title
	descriptor.FilenameHint = req.FilenameHint
	if req.SelectedQuality != "" {
		descriptor.SelectedQuality = req.SelectedQuality
	}
	if req.DownloadSubtitles != nil {
		descriptor.DownloadSubtitles = *req.DownloadSubtitles
	} else {
		descriptor.DownloadSubtitles = h.settings.GetBool("subtitle_download")
	}

	downloadPath := req.DownloadPath
	if downloadPath == "" {
		downloadPath = h.settings.GetDownloadDirectory()
	}

	task, err := h.store.Add(descriptor, downloadPath)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateURL) {
			h.log.Debug("duplicate URL rejected", zap.String("url", req.URL))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Start {
		h.service.Start(task.ID)
	}
	c.JSON(http.StatusCreated, task)
}

// ListDownloads handles GET /downloads with an optional status filter
func (h *QueueHandler) ListDownloads(c *gin.Context) {
	if status := c.Query("status"); status != "" {
		if !domain.ValidateStatus(domain.DownloadStatus(status)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + status})
			return
		}
		c.JSON(http.StatusOK, h.store.ByStatus(domain.DownloadStatus(status)))
		return
	}
	c.JSON(http.StatusOK, h.store.All())
}

// GetDownload handles GET /downloads/:id
func (h *QueueHandler) GetDownload(c *gin.Context) {
	task, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// StartDownload handles POST /downloads/:id/start
func (h *QueueHandler) StartDownload(c *gin.Context) {
	id := c.Param("id")
	if !h.service.Start(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "could not start download"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "starting"})
}

// StopDownload handles POST /downloads/:id/stop
func (h *QueueHandler) StopDownload(c *gin.Context) {
	id := c.Param("id")
	if !h.service.Stop(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "download not active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "stopping"})
}

// StartAll handles POST /downloads/start-all
func (h *QueueHandler) StartAll(c *gin.Context) {
	started := h.service.StartAllQueued()
	c.JSON(http.StatusOK, gin.H{"started": started})
}

// StopAll handles POST /downloads/stop-all
func (h *QueueHandler) StopAll(c *gin.Context) {
	h.service.StopAll()
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

// DeleteDownload handles DELETE /downloads/:id
func (h *QueueHandler) DeleteDownload(c *gin.Context) {
	id := c.Param("id")
	// stop first so a running worker observes its token
	h.service.Stop(id)
	if !h.store.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// ClearQueue handles DELETE /downloads
func (h *QueueHandler) ClearQueue(c *gin.Context) {
	h.service.StopAll()
	h.store.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// GetStats handles GET /downloads/stats
func (h *QueueHandler) GetStats(c *gin.Context) {
	stats := gin.H{
		"total":  h.store.Count(),
		"active": h.service.ActiveCount(),
	}
	for _, status := range []domain.DownloadStatus{
		domain.StatusQueued, domain.StatusDownloading,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusStopped,
	} {
		stats[string(status)] = len(h.store.ByStatus(status))
	}
	c.JSON(http.StatusOK, stats)
}
