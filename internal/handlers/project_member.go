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

// ProjectMemberHandler manages the membership roster of a project.
type ProjectMemberHandler struct {
	projectService *services.ProjectService
}

func NewProjectMemberHandler(db *gorm.DB, resolver *authz.Resolver) *ProjectMemberHandler {
	return &ProjectMemberHandler{
		projectService: services.NewProjectService(db, resolver),
	}
}

type updateMemberRequest struct {
	Role string `json:"role" binding:"required"`
}

// List returns all members of a project.
// GET /api/projects/:id/members
func (h *ProjectMemberHandler) List(c *gin.Context) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return
	}

	members, err := h.projectService.ListMembers(middleware.GetActor(c), uint(projectID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, members)
}

// Add adds a user to a project with the specified role.
// POST /api/projects/:id/members
func (h *ProjectMemberHandler) Add(c *gin.Context) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return
	}

	var req services.MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.projectService.AddMember(middleware.GetActor(c), uint(projectID), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, member)
}

// Update changes a member's project role.
// PUT /api/projects/:id/members/:userID
func (h *ProjectMemberHandler) Update(c *gin.Context) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return
	}
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.projectService.UpdateMemberRole(middleware.GetActor(c), uint(projectID), uint(userID), req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, member)
}

// Remove removes a member from a project.
// DELETE /api/projects/:id/members/:userID
func (h *ProjectMemberHandler) Remove(c *gin.Context) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return
	}
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	if err := h.projectService.RemoveMember(middleware.GetActor(c), uint(projectID), uint(userID)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "member removed"})
}
