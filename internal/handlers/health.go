package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database, the task queue and the
// change hub.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.ChangeHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.ChangeHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var families, members int64
	h.db.Model(&models.Family{}).Count(&families)
	h.db.Model(&models.Member{}).Count(&members)

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "family-tree",
		"components": gin.H{
			"database":       dbStatus,
			"queue_mode":     queueMode,
			"stream_clients": h.hub.ClientCount(),
			"families":       families,
			"members":        members,
		},
	})
}
