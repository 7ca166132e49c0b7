package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/klyp/klyp-go/internal/service"
)

// SearchHandler submits search queries to the search service
type SearchHandler struct {
	service *service.SearchService
}

// NewSearchHandler creates a search handler
func NewSearchHandler(svc *service.SearchService) *SearchHandler {
	return &SearchHandler{service: svc}
}

// SearchRequest is the body of POST /search
type SearchRequest struct {
	Query   string            `json:"query" binding:"required"`
	Filters map[string]string `json:"filters"`
}

// Search handles POST /search. The query runs on the search pool; results
// arrive as SearchComplete/SearchFailed events on the event stream.
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.service.Search(req.Query, req.Filters); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"query": req.Query, "status": "searching"})
}
