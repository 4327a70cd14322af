package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castpipe/castpipe/internal/crawler"
	"github.com/castpipe/castpipe/internal/storage"
)

// Handler handles HTTP requests for the crawler admin surface
type Handler struct {
	store  storage.Store
	system *crawler.System
}

// NewHandler creates a new API handler
func NewHandler(store storage.Store, system *crawler.System) *Handler {
	return &Handler{
		store:  store,
		system: system,
	}
}

// RegisterRoutes registers all API routes on the given router
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Health check endpoint
	r.GET("/health", h.Health)

	// Prometheus exposition
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Ingestion endpoints
	r.POST("/add_task", h.AddTask)
	r.GET("/tasks", h.ListTasks)
	r.GET("/workers", h.WorkerMetrics)

	// Read-only views over persistence
	r.GET("/podcasts", h.ListPodcasts)
	r.GET("/podcasts/search", h.SearchPodcasts)
	r.GET("/podcasts/:id/episodes/:page/:per_page", h.ListEpisodes)
	r.GET("/stats", h.GetStats)
}

// Health checks if the service is healthy
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy"})
}
