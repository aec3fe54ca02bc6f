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

type LabelHandler struct {
	labelService *services.LabelService
}

func NewLabelHandler(db *gorm.DB, resolver *authz.Resolver) *LabelHandler {
	return &LabelHandler{
		labelService: services.NewLabelService(db, resolver),
	}
}

// List returns the tenant's labels
// GET /api/labels
func (h *LabelHandler) List(c *gin.Context) {
	labels, err := h.labelService.List(middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, labels)
}

// Create creates a label
// POST /api/labels
func (h *LabelHandler) Create(c *gin.Context) {
	var req services.LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	label, err := h.labelService.Create(middleware.GetActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, label)
}

// Update renames or recolors a label
// PUT /api/labels/:id
func (h *LabelHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid label id")
		return
	}

	var req services.LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	label, err := h.labelService.Update(middleware.GetActor(c), uint(id), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, label)
}

// Delete removes a label and detaches it from all tasks
// DELETE /api/labels/:id
func (h *LabelHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid label id")
		return
	}

	if err := h.labelService.Delete(middleware.GetActor(c), uint(id)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "label deleted"})
}
