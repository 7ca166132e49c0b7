package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/klyp/klyp-go/internal/settings"
)

// SettingsHandler exposes the settings store over HTTP
type SettingsHandler struct {
	store *settings.Store
}

// NewSettingsHandler creates a settings handler
func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings handles GET /settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// UpdateSettings handles PUT /settings. The body is a partial map of
// settings; each entry is validated individually and the first invalid one
// aborts the request.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for key, value := range updates {
		if err := h.store.Set(key, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "key": key})
			return
		}
	}
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// ResetSettings handles POST /settings/reset
func (h *SettingsHandler) ResetSettings(c *gin.Context) {
	h.store.ResetToDefaults()
	c.JSON(http.StatusOK, h.store.Snapshot())
}
