package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/internal/services"
)

// HealthHandler reports the status of the server's subsystems.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	queue := services.GetEventQueue()
	queueMode := "sync"
	if queue != nil && queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var openTasks int64
	models.GetDB().Model(&models.Task{}).
		Where("status IN ?", []string{models.TaskStatusTodo, models.TaskStatusInProgress}).
		Count(&openTasks)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "tasktrail",
		"components": gin.H{
			"database":   dbStatus,
			"queue_mode": queueMode,
			"open_tasks": openTasks,
		},
	})
}
