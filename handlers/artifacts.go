package handlers

import (
	"errors"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"soundry/services"
	"soundry/types"
)

// ArtifactHandler handles listing, deleting, streaming and bundling artifacts
type ArtifactHandler struct {
	gateway *services.Gateway
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(gateway *services.Gateway) *ArtifactHandler {
	return &ArtifactHandler{gateway: gateway}
}

// ListArtifacts returns every artifact, newest first
func (h *ArtifactHandler) ListArtifacts(c *gin.Context) {
	artifacts, err := h.gateway.ListArtifacts()
	if err != nil {
		log.Printf("Error listing artifacts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to list files",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, artifacts)
}

// GetArtifact returns tag metadata for one artifact
func (h *ArtifactHandler) GetArtifact(c *gin.Context) {
	details, err := h.gateway.ArtifactDetails(c.Param("name"))
	if err != nil {
		writeArtifactError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// DeleteArtifact deletes one artifact named by the :name param or the file query
func (h *ArtifactHandler) DeleteArtifact(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		name = c.Query("file")
	}

	err := h.gateway.DeleteArtifact(name)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, types.DeleteResult{Deleted: true})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, types.DeleteResult{Error: "File not found"})
	case errors.Is(err, services.ErrPathTraversal):
		c.JSON(http.StatusForbidden, types.DeleteResult{Error: err.Error()})
	default:
		log.Printf("Error deleting %s: %v", name, err)
		c.JSON(http.StatusInternalServerError, types.DeleteResult{Error: err.Error()})
	}
}

// StreamFile serves one file from the download directory with range support
func (h *ArtifactHandler) StreamFile(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("filepath"), "/")

	f, info, err := h.gateway.OpenArtifact(name)
	if err != nil {
		writeArtifactError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", contentType(name))
	c.Header("Cache-Control", "public, max-age=3600")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

// DownloadBundle streams the requested artifacts as one zip archive
func (h *ArtifactHandler) DownloadBundle(c *gin.Context) {
	var req types.BundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid bundle request",
			"details": err.Error(),
		})
		return
	}
	log.Printf("Streaming zip for %d files", len(req.Files))

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", "attachment; filename="+services.BundleFilename)
	c.Status(http.StatusOK)

	for chunk, err := range h.gateway.Bundle(c.Request.Context(), req.Files) {
		if err != nil {
			log.Printf("Bundle aborted: %v", err)
			if !c.Writer.Written() {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "bundle failed"})
				return
			}
			// Part of the archive is already out; drop the connection instead
			// of ending the body as if it were complete.
			panic(http.ErrAbortHandler)
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			log.Printf("Bundle client gone: %v", err)
			panic(http.ErrAbortHandler)
		}
		c.Writer.Flush()
	}
}

func writeArtifactError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case errors.Is(err, services.ErrPathTraversal):
		c.JSON(http.StatusForbidden, gin.H{"error": "path traversal not allowed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "file access error",
			"details": err.Error(),
		})
	}
}

// contentType returns the MIME type for an artifact or cover image
func contentType(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
