package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castpipe/castpipe/internal/models"
)

// AddTask handles POST /add_task
// Admits one feed URL into the ingestion pipeline
func (h *Handler) AddTask(c *gin.Context) {
	var req models.AddTaskRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.system.Submit(req.RSSURL); err != nil {
		slog.Error("Failed to add task", "rss_url", req.RSSURL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to add task",
		})
		return
	}

	slog.Info("Task accepted", "rss_url", req.RSSURL)
	c.JSON(http.StatusOK, models.AddTaskResponse{Status: "accepted"})
}

// ListTasks handles GET /tasks
// Returns a snapshot of every task with its full stage log
func (h *Handler) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.system.ListTasks()})
}

// WorkerMetrics handles GET /workers
// Returns per-worker processing counters
func (h *Handler) WorkerMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workers": h.system.WorkerMetrics()})
}
