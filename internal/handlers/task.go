package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/middleware"
	"github.com/tasktrail/tasktrail/internal/services"
	"github.com/tasktrail/tasktrail/pkg/response"
	"gorm.io/gorm"
)

type TaskHandler struct {
	taskService    *services.TaskService
	historyService *services.HistoryService
}

func NewTaskHandler(db *gorm.DB, resolver *authz.Resolver, events services.EventQueue) *TaskHandler {
	taskService := services.NewTaskService(db, resolver)
	taskService.SetEventQueue(events)
	return &TaskHandler{
		taskService:    taskService,
		historyService: services.NewHistoryService(db, resolver),
	}
}

// List returns paginated tasks visible to the actor
// GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	var req services.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.taskService.List(middleware.GetActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GetByID returns a task by ID
// GET /api/tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}

	task, err := h.taskService.Get(middleware.GetActor(c), uint(id))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, task)
}

// Create creates a new task at version 1
// POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req services.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.Create(middleware.GetActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

type mutateTaskRequest struct {
	ExpectedVersion *int `json:"expected_version"`
	services.TaskChanges
}

// Mutate applies a sparse update under optimistic concurrency control. The
// expected version comes from the If-Match header or the request body; a
// stale value yields 409 with the current version so the caller can reload
// and retry.
// PATCH /api/tasks/:id
func (h *TaskHandler) Mutate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}

	var req mutateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	expected := 0
	if match := c.GetHeader("If-Match"); match != "" {
		v, err := strconv.Atoi(match)
		if err != nil {
			response.BadRequest(c, "If-Match must be a version number")
			return
		}
		expected = v
	} else if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	} else {
		response.BadRequest(c, "expected_version is required")
		return
	}

	result, err := h.taskService.Mutate(middleware.GetActor(c), uint(id), expected, &req.TaskChanges)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Delete soft-deletes a task
// DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}

	if err := h.taskService.Delete(middleware.GetActor(c), uint(id)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "task deleted"})
}

// History returns a task's change log, most recent first
// GET /api/tasks/:id/history
func (h *TaskHandler) History(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid task id")
		return
	}

	var req services.HistoryListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.historyService.List(middleware.GetActor(c), uint(id), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}
