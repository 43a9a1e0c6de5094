package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"soundry/services"
	"soundry/types"
	"soundry/websocket"
)

// JobHandler handles fetch submissions and job progress
type JobHandler struct {
	gateway *services.Gateway
	hub     websocket.Hub
}

// NewJobHandler creates a new job handler
func NewJobHandler(gateway *services.Gateway, hub websocket.Hub) *JobHandler {
	return &JobHandler{
		gateway: gateway,
		hub:     hub,
	}
}

// bindSubmit reads a submission from the JSON body, falling back to the
// url and format query parameters.
func bindSubmit(c *gin.Context) (types.SubmitJobRequest, error) {
	var req types.SubmitJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, err
		}
	}
	if req.URL == "" {
		req.URL = c.Query("url")
	}
	if req.Format == "" {
		req.Format = c.Query("format")
	}
	if source := c.Param("source"); source != "" {
		req.Source = types.JobSource(source)
	}
	return req, nil
}

// Download runs a fetch for the :source param and waits for its outcome
func (h *JobHandler) Download(c *gin.Context) {
	req, err := bindSubmit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	job, err := h.gateway.SubmitJob(c.Request.Context(), req.Source, req.URL, req.Format)
	if err != nil {
		if job.ID != "" {
			// Client went away while waiting; the job keeps running.
			log.Printf("Client left before job %s finished: %v", job.ID, err)
			c.JSON(http.StatusAccepted, toResponse(job))
			return
		}
		writeSubmitError(c, err)
		return
	}

	c.JSON(statusFor(job.State), toResponse(job))
}

// SubmitJob queues a fetch and returns immediately
func (h *JobHandler) SubmitJob(c *gin.Context) {
	req, err := bindSubmit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	job, err := h.gateway.Jobs().Submit(req.Source, req.URL, req.Format)
	if err != nil {
		writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Job queued successfully",
		"job":     job,
	})
}

// GetJob returns the status of a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.gateway.Jobs().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetAllJobs returns every known job, newest first
func (h *JobHandler) GetAllJobs(c *gin.Context) {
	jobs := h.gateway.Jobs().All()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CancelJob cancels a job that has not started
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.gateway.Jobs().Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if !h.gateway.Jobs().Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "job already started"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Job cancelled successfully",
		"job_id":  id,
	})
}

// Events streams job and catalog events over a websocket
func (h *JobHandler) Events(c *gin.Context) {
	h.upgrade(c, websocket.TopicAll)
}

// JobEvents streams events for a single job over a websocket
func (h *JobHandler) JobEvents(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.gateway.Jobs().Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	h.upgrade(c, id)
}

func (h *JobHandler) upgrade(c *gin.Context, topic string) {
	if err := websocket.Upgrade(h.hub, c.Writer, c.Request, topic); err != nil {
		// The upgrader has already written an error response.
		log.Printf("WebSocket upgrade failed: %v", err)
	}
}

func toResponse(job types.Job) types.JobResponse {
	return types.JobResponse{
		JobID:             job.ID,
		State:             job.State,
		ErrorKind:         job.ErrorKind,
		Diagnostic:        job.Diagnostic,
		FirstArtifactName: job.FirstArtifact,
	}
}

func statusFor(state types.JobState) int {
	switch state {
	case types.JobStateSucceeded:
		return http.StatusOK
	case types.JobStateTimedOut:
		return http.StatusRequestTimeout
	case types.JobStateCancelled:
		return http.StatusConflict
	case types.JobStatePending, types.JobStateRunning:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyTarget), errors.Is(err, services.ErrUnknownSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to queue job",
			"details": err.Error(),
		})
	}
}
