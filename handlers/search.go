package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"soundry/services"
	"soundry/types"
)

// SearchHandler handles search endpoints
type SearchHandler struct {
	gateway *services.Gateway
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(gateway *services.Gateway) *SearchHandler {
	return &SearchHandler{gateway: gateway}
}

// Search asks the source's tool for matches. The query comes from the JSON
// body or the q parameter; source defaults to spotify.
func (h *SearchHandler) Search(c *gin.Context) {
	var req types.SearchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid search request",
				"details": err.Error(),
			})
			return
		}
	}
	if req.Query == "" {
		req.Query = c.Query("q")
	}
	if req.Source == "" {
		req.Source = types.JobSource(c.DefaultQuery("source", string(types.JobSourceSpotify)))
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	results, err := h.gateway.Search(c.Request.Context(), req.Source, query)
	if err != nil {
		if errors.Is(err, services.ErrUnknownSource) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, services.ErrToolTimeout) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "search timed out"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "search failed",
			"details": err.Error(),
		})
		return
	}

	if results == nil {
		results = []string{}
	}
	c.JSON(http.StatusOK, types.SearchResponse{
		Success: true,
		Source:  string(req.Source),
		Results: results,
	})
}
