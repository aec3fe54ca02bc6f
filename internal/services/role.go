package services

import (
	"errors"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

// RoleService manages tenant-scoped roles and their assignment to users.
// Every path that changes who holds which permissions must invalidate the
// resolver's cache, otherwise a revocation could outlive the staleness window.
type RoleService struct {
	db       *gorm.DB
	resolver *authz.Resolver
}

func NewRoleService(db *gorm.DB, resolver *authz.Resolver) *RoleService {
	return &RoleService{db: db, resolver: resolver}
}

type RoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// List returns the tenant's roles with their permission bundles.
func (s *RoleService) List(actor authz.Actor) ([]models.Role, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermRoleManage) {
		return nil, apperr.PermissionDenied("requires role.manage permission")
	}
	var roles []models.Role
	if err := s.db.Preload("Permissions").
		Where("tenant_id = ?", actor.TenantID).
		Order("created_at ASC").
		Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// Create adds a role with the given permission keys.
func (s *RoleService) Create(actor authz.Actor, req *RoleRequest) (*models.Role, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermRoleManage) {
		return nil, apperr.PermissionDenied("requires role.manage permission")
	}

	perms, err := s.lookupPermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	role := models.Role{
		TenantID:    actor.TenantID,
		Name:        req.Name,
		Description: req.Description,
		Permissions: perms,
	}
	if err := s.db.Create(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// Update replaces a role's name, description and permission bundle. Any user
// holding this role may gain or lose permissions, so the whole cache goes.
func (s *RoleService) Update(actor authz.Actor, roleID uint, req *RoleRequest) (*models.Role, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermRoleManage) {
		return nil, apperr.PermissionDenied("requires role.manage permission")
	}

	role, err := s.tenantRole(actor, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, apperr.Validation("system roles cannot be modified")
	}

	perms, err := s.lookupPermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"name":        req.Name,
			"description": req.Description,
		}
		if err := tx.Model(role).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(role).Association("Permissions").Replace(&perms)
	})
	if err != nil {
		return nil, err
	}

	s.resolver.InvalidateAll()
	return role, nil
}

// Delete removes a non-system role along with its assignments.
func (s *RoleService) Delete(actor authz.Actor, roleID uint) error {
	if !s.resolver.HasTenantPermission(actor, authz.PermRoleManage) {
		return apperr.PermissionDenied("requires role.manage permission")
	}

	role, err := s.tenantRole(actor, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperr.Validation("system roles cannot be deleted")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM user_roles WHERE role_id = ?", role.ID).Error; err != nil {
			return err
		}
		return tx.Delete(role).Error
	})
	if err != nil {
		return err
	}

	s.resolver.InvalidateAll()
	return nil
}

// Assign grants a role to a user in the same tenant.
func (s *RoleService) Assign(actor authz.Actor, userID, roleID uint) error {
	if !s.resolver.HasTenantPermission(actor, authz.PermRoleManage) {
		return apperr.PermissionDenied("requires role.manage permission")
	}

	role, err := s.tenantRole(actor, roleID)
	if err != nil {
		return err
	}

	var user models.User
	if err := s.db.Where("id = ? AND tenant_id = ?", userID, actor.TenantID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user")
		}
		return err
	}

	if err := s.db.Model(&user).Association("Roles").Append(role); err != nil {
		return err
	}

	s.resolver.Invalidate(user.ID)
	return nil
}

// Revoke removes a role from a user.
func (s *RoleService) Revoke(actor authz.Actor, userID, roleID uint) error {
	if !s.resolver.HasTenantPermission(actor, authz.PermRoleManage) {
		return apperr.PermissionDenied("requires role.manage permission")
	}

	role, err := s.tenantRole(actor, roleID)
	if err != nil {
		return err
	}

	var user models.User
	if err := s.db.Where("id = ? AND tenant_id = ?", userID, actor.TenantID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user")
		}
		return err
	}

	if err := s.db.Model(&user).Association("Roles").Delete(role); err != nil {
		return err
	}

	s.resolver.Invalidate(user.ID)
	return nil
}

func (s *RoleService) tenantRole(actor authz.Actor, roleID uint) (*models.Role, error) {
	var role models.Role
	err := s.db.Where("id = ? AND tenant_id = ?", roleID, actor.TenantID).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("role")
		}
		return nil, err
	}
	return &role, nil
}

func (s *RoleService) lookupPermissions(keys []string) ([]models.Permission, error) {
	if len(keys) == 0 {
		return []models.Permission{}, nil
	}
	var perms []models.Permission
	if err := s.db.Where("key IN ?", keys).Find(&perms).Error; err != nil {
		return nil, err
	}
	if len(perms) != len(keys) {
		return nil, apperr.Validation("one or more permission keys are unknown")
	}
	return perms, nil
}

// EnsureDefaultRoles seeds the Admin and Member system roles for a tenant.
// Idempotent; called at startup for the default tenant and whenever a tenant
// is created.
func EnsureDefaultRoles(db *gorm.DB, tenantID uint) error {
	defaults := []struct {
		name        string
		description string
		keys        []string
	}{
		{
			name:        "Admin",
			description: "Full tenant administration",
			keys:        authz.Keys(),
		},
		{
			name:        "Member",
			description: "Day-to-day project work",
			keys: []string{
				authz.PermProjectCreate,
				authz.PermTaskCreate, authz.PermTaskRead, authz.PermTaskUpdate, authz.PermTaskDelete,
				authz.PermCommentCreate, authz.PermCommentUpdate, authz.PermCommentDelete,
				authz.PermLabelManage,
				authz.PermHistoryRead,
			},
		},
	}

	for _, d := range defaults {
		var existing models.Role
		err := db.Where("tenant_id = ? AND name = ?", tenantID, d.name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var perms []models.Permission
		if err := db.Where("key IN ?", d.keys).Find(&perms).Error; err != nil {
			return err
		}

		role := models.Role{
			TenantID:    tenantID,
			Name:        d.name,
			Description: d.description,
			IsSystem:    true,
			Permissions: perms,
		}
		if err := db.Create(&role).Error; err != nil {
			return err
		}
	}
	return nil
}
