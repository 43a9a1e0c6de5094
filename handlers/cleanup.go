package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"soundry/services"
)

// CleanupHandler runs retention sweeps on demand
type CleanupHandler struct {
	janitor *services.Janitor
}

// NewCleanupHandler creates a new cleanup handler
func NewCleanupHandler(janitor *services.Janitor) *CleanupHandler {
	return &CleanupHandler{janitor: janitor}
}

// Cleanup sweeps expired files now and reports what was removed. A sweep
// already running in the background finishes first.
func (h *CleanupHandler) Cleanup(c *gin.Context) {
	report := h.janitor.Sweep(c.Request.Context())
	log.Printf("Manual cleanup: deleted %d of %d files", report.Deleted, report.Scanned)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
	})
}
