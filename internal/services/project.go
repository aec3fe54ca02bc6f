package services

import (
	"errors"
	"fmt"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

type ProjectService struct {
	db       *gorm.DB
	resolver *authz.Resolver
}

func NewProjectService(db *gorm.DB, resolver *authz.Resolver) *ProjectService {
	return &ProjectService{db: db, resolver: resolver}
}

type ProjectListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Name     string `form:"name"`
	Archived *bool  `form:"archived"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name          string `json:"name" binding:"required"`
	Key           string `json:"key"`
	Description   string `json:"description"`
	WebhookURL    string `json:"webhook_url"`
	NotifyEnabled bool   `json:"notify_enabled"`
}

type UpdateProjectRequest struct {
	Name          string  `json:"name"`
	Key           string  `json:"key"`
	Description   *string `json:"description"`
	WebhookURL    *string `json:"webhook_url"`
	NotifyEnabled *bool   `json:"notify_enabled"`
	Archived      *bool   `json:"archived"`
}

// List returns the projects the actor can see: tenant admins see every
// project in the tenant, everyone else only the ones they are a member of.
func (s *ProjectService) List(actor authz.Actor, req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.Project{}).Where("projects.tenant_id = ?", actor.TenantID)

	if !s.resolver.HasTenantPermission(actor, authz.PermAdminAccess) {
		query = query.Where(
			"projects.id IN (?)",
			s.db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", actor.ID),
		)
	}

	if req.Name != "" {
		query = query.Where("projects.name LIKE ?", "%"+req.Name+"%")
	}
	if req.Archived != nil {
		query = query.Where("projects.archived = ?", *req.Archived)
	}

	var total int64
	query.Count(&total)

	var projects []models.Project
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("projects.created_at DESC").Offset(offset).Limit(req.PageSize).Find(&projects).Error; err != nil {
		return nil, err
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// Get returns one project after the membership check.
func (s *ProjectService) Get(actor authz.Actor, projectID uint) (*models.Project, error) {
	project, err := s.visibleProject(actor, projectID)
	if err != nil {
		return nil, err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, ""); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}
	return project, nil
}

// Create inserts a project and makes the creator its owner in one
// transaction, so a project can never exist without at least one owner.
func (s *ProjectService) Create(actor authz.Actor, req *CreateProjectRequest) (*models.Project, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermProjectCreate) {
		return nil, apperr.PermissionDenied("requires project.create permission")
	}

	project := models.Project{
		TenantID:      actor.TenantID,
		Name:          req.Name,
		Key:           req.Key,
		Description:   req.Description,
		WebhookURL:    req.WebhookURL,
		NotifyEnabled: req.NotifyEnabled,
		CreatedBy:     actor.ID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		owner := models.ProjectMember{
			ProjectID: project.ID,
			UserID:    actor.ID,
			Role:      models.ProjectRoleOwner,
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		return nil, err
	}

	return &project, nil
}

// Update modifies project settings. Requires pm role (owner/admin bypass).
func (s *ProjectService) Update(actor authz.Actor, projectID uint, req *UpdateProjectRequest) (*models.Project, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermProjectUpdate) {
		return nil, apperr.PermissionDenied("requires project.update permission")
	}

	project, err := s.visibleProject(actor, projectID)
	if err != nil {
		return nil, err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, models.ProjectRolePM); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Key != "" {
		updates["key"] = req.Key
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.WebhookURL != nil {
		updates["webhook_url"] = *req.WebhookURL
	}
	if req.NotifyEnabled != nil {
		updates["notify_enabled"] = *req.NotifyEnabled
	}
	if req.Archived != nil {
		updates["archived"] = *req.Archived
	}

	if len(updates) > 0 {
		if err := s.db.Model(project).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	return project, nil
}

// Delete soft-deletes a project with its memberships and tasks. Only an owner
// membership (or tenant admin with one) passes the access check here.
func (s *ProjectService) Delete(actor authz.Actor, projectID uint) error {
	if !s.resolver.HasTenantPermission(actor, authz.PermProjectDelete) {
		return apperr.PermissionDenied("requires project.delete permission")
	}

	project, err := s.visibleProject(actor, projectID)
	if err != nil {
		return err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, models.ProjectRoleOwner); !d.Allowed {
		return apperr.PermissionDenied(d.Reason)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		return tx.Delete(project).Error
	})
}

type MemberRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// ListMembers returns the membership roster of a project.
func (s *ProjectService) ListMembers(actor authz.Actor, projectID uint) ([]models.ProjectMember, error) {
	project, err := s.visibleProject(actor, projectID)
	if err != nil {
		return nil, err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, ""); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}

	var members []models.ProjectMember
	if err := s.db.Preload("User").
		Where("project_id = ?", project.ID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// AddMember adds a user to the project roster. Managing members requires an
// owner membership (tenant admins who are members bypass as usual).
func (s *ProjectService) AddMember(actor authz.Actor, projectID uint, req *MemberRequest) (*models.ProjectMember, error) {
	project, err := s.visibleProject(actor, projectID)
	if err != nil {
		return nil, err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, models.ProjectRoleOwner); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}
	if !models.ValidProjectRole(req.Role) {
		return nil, apperr.Validation("invalid project role: " + req.Role)
	}

	var user models.User
	if err := s.db.Where("id = ? AND tenant_id = ?", req.UserID, actor.TenantID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}

	var existing int64
	s.db.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", project.ID, req.UserID).
		Count(&existing)
	if existing > 0 {
		return nil, apperr.Validation("user is already a project member")
	}

	member := models.ProjectMember{
		ProjectID: project.ID,
		UserID:    req.UserID,
		Role:      req.Role,
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMemberRole changes a member's role label. Demoting the last owner is
// rejected so every project keeps at least one owner.
func (s *ProjectService) UpdateMemberRole(actor authz.Actor, projectID, userID uint, role string) (*models.ProjectMember, error) {
	project, err := s.visibleProject(actor, projectID)
	if err != nil {
		return nil, err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, models.ProjectRoleOwner); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}
	if !models.ValidProjectRole(role) {
		return nil, apperr.Validation("invalid project role: " + role)
	}

	var member models.ProjectMember
	err = s.db.Where("project_id = ? AND user_id = ?", project.ID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("project member")
		}
		return nil, err
	}

	if member.Role == models.ProjectRoleOwner && role != models.ProjectRoleOwner {
		lastOwner, err := s.isLastOwner(project.ID, member.UserID)
		if err != nil {
			return nil, err
		}
		if lastOwner {
			return nil, apperr.Validation("cannot demote the last owner of a project")
		}
	}

	if err := s.db.Model(&member).Update("role", role).Error; err != nil {
		return nil, err
	}
	member.Role = role
	return &member, nil
}

// RemoveMember drops a user from the roster. Removing the last owner is
// rejected for the same reason demoting one is.
func (s *ProjectService) RemoveMember(actor authz.Actor, projectID, userID uint) error {
	project, err := s.visibleProject(actor, projectID)
	if err != nil {
		return err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, models.ProjectRoleOwner); !d.Allowed {
		return apperr.PermissionDenied(d.Reason)
	}

	var member models.ProjectMember
	err = s.db.Where("project_id = ? AND user_id = ?", project.ID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("project member")
		}
		return err
	}

	if member.Role == models.ProjectRoleOwner {
		lastOwner, err := s.isLastOwner(project.ID, member.UserID)
		if err != nil {
			return err
		}
		if lastOwner {
			return apperr.Validation("cannot remove the last owner of a project")
		}
	}

	return s.db.Delete(&member).Error
}

func (s *ProjectService) isLastOwner(projectID, userID uint) (bool, error) {
	var otherOwners int64
	err := s.db.Model(&models.ProjectMember{}).
		Where("project_id = ? AND role = ? AND user_id <> ?", projectID, models.ProjectRoleOwner, userID).
		Count(&otherOwners).Error
	if err != nil {
		return false, err
	}
	return otherOwners == 0, nil
}

// visibleProject is the tenant-scope stage of the two-stage check: projects
// from other tenants read as not found, never as forbidden.
func (s *ProjectService) visibleProject(actor authz.Actor, projectID uint) (*models.Project, error) {
	var project models.Project
	err := s.db.Where("id = ? AND tenant_id = ?", projectID, actor.TenantID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("project")
		}
		return nil, fmt.Errorf("load project: %w", err)
	}
	return &project, nil
}
