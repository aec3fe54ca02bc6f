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

type RoleHandler struct {
	roleService *services.RoleService
}

func NewRoleHandler(db *gorm.DB, resolver *authz.Resolver) *RoleHandler {
	return &RoleHandler{
		roleService: services.NewRoleService(db, resolver),
	}
}

// List returns the tenant's roles with their permission bundles
// GET /api/roles
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roleService.List(middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, roles)
}

// Permissions returns the full permission catalog
// GET /api/roles/permissions
func (h *RoleHandler) Permissions(c *gin.Context) {
	keys := authz.Keys()
	items := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		desc, _ := authz.Describe(key)
		items = append(items, gin.H{"key": key, "description": desc})
	}
	response.Success(c, items)
}

// Create creates a custom role
// POST /api/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var req services.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	role, err := h.roleService.Create(middleware.GetActor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, role)
}

// Update replaces a role's name, description and permission bundle
// PUT /api/roles/:id
func (h *RoleHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}

	var req services.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	role, err := h.roleService.Update(middleware.GetActor(c), uint(id), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, role)
}

// Delete removes a custom role and all its assignments
// DELETE /api/roles/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid role id")
		return
	}

	if err := h.roleService.Delete(middleware.GetActor(c), uint(id)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "role deleted"})
}

type roleAssignmentRequest struct {
	UserID uint `json:"user_id" binding:"required"`
	RoleID uint `json:"role_id" binding:"required"`
}

// Assign grants a role to a user; takes effect on their next request
// POST /api/roles/assign
func (h *RoleHandler) Assign(c *gin.Context) {
	var req roleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.roleService.Assign(middleware.GetActor(c), req.UserID, req.RoleID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "role assigned"})
}

// Revoke removes a role from a user
// POST /api/roles/revoke
func (h *RoleHandler) Revoke(c *gin.Context) {
	var req roleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.roleService.Revoke(middleware.GetActor(c), req.UserID, req.RoleID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "role revoked"})
}
