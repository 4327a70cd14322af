package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/castpipe/castpipe/internal/storage"
)

// ListPodcasts handles GET /podcasts
func (h *Handler) ListPodcasts(c *gin.Context) {
	podcasts, err := h.store.ListPodcasts(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list podcasts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list podcasts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"podcasts": podcasts})
}

// SearchPodcasts handles GET /podcasts/search?q=...
func (h *Handler) SearchPodcasts(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}

	podcasts, err := h.store.SearchPodcasts(c.Request.Context(), query)
	if err != nil {
		slog.Error("Failed to search podcasts", "query", query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search podcasts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"podcasts": podcasts})
}

// ListEpisodes handles GET /podcasts/:id/episodes/:page/:per_page
func (h *Handler) ListEpisodes(c *gin.Context) {
	podcastID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid podcast ID"})
		return
	}
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
		return
	}
	perPage, err := strconv.Atoi(c.Param("per_page"))
	if err != nil || perPage < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid per_page"})
		return
	}

	if _, err := h.store.GetPodcast(c.Request.Context(), podcastID); err != nil {
		if errors.Is(err, storage.ErrPodcastNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Podcast not found"})
			return
		}
		slog.Error("Failed to get podcast", "podcast_id", podcastID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve podcast"})
		return
	}

	episodes, err := h.store.ListEpisodes(c.Request.Context(), podcastID, page, perPage)
	if err != nil {
		slog.Error("Failed to list episodes", "podcast_id", podcastID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list episodes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"episodes": episodes})
}

// GetStats handles GET /stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.GetStats(c.Request.Context())
	if err != nil {
		slog.Error("Failed to get stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
