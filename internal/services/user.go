package services

import (
	"errors"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/internal/utils"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	resolver *authz.Resolver
}

func NewUserService(db *gorm.DB, resolver *authz.Resolver) *UserService {
	return &UserService{db: db, resolver: resolver}
}

type UserListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Search   string `form:"search"`
	IsActive *bool  `form:"is_active"`
}

type UserListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.User `json:"items"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	RoleIDs  []uint `json:"role_ids"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Nickname *string `json:"nickname"`
	IsActive *bool   `json:"is_active"`
}

func (s *UserService) List(actor authz.Actor, req *UserListRequest) (*UserListResponse, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermUserManage) {
		return nil, apperr.PermissionDenied("requires user.manage permission")
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.User{}).Where("tenant_id = ?", actor.TenantID)

	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("username LIKE ? OR nickname LIKE ? OR email LIKE ?", like, like, like)
	}
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	var total int64
	query.Count(&total)

	var users []models.User
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Roles").
		Order("created_at ASC").
		Offset(offset).Limit(req.PageSize).
		Find(&users).Error; err != nil {
		return nil, err
	}

	return &UserListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    users,
	}, nil
}

func (s *UserService) Get(actor authz.Actor, userID uint) (*models.User, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermUserManage) && actor.ID != userID {
		return nil, apperr.PermissionDenied("requires user.manage permission")
	}
	return s.tenantUser(actor, userID)
}

func (s *UserService) Create(actor authz.Actor, req *CreateUserRequest) (*models.User, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermUserManage) {
		return nil, apperr.PermissionDenied("requires user.manage permission")
	}

	var existing int64
	s.db.Model(&models.User{}).
		Where("tenant_id = ? AND username = ?", actor.TenantID, req.Username).
		Count(&existing)
	if existing > 0 {
		return nil, apperr.Validation("username already taken: " + req.Username)
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var roles []models.Role
	if len(req.RoleIDs) > 0 {
		if err := s.db.Where("id IN ? AND tenant_id = ?", req.RoleIDs, actor.TenantID).Find(&roles).Error; err != nil {
			return nil, err
		}
		if len(roles) != len(req.RoleIDs) {
			return nil, apperr.Validation("one or more roles do not exist")
		}
	}

	user := models.User{
		TenantID: actor.TenantID,
		Username: req.Username,
		Password: hashed,
		Email:    req.Email,
		Nickname: req.Nickname,
		AuthType: "local",
		IsActive: true,
		Roles:    roles,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) Update(actor authz.Actor, userID uint, req *UpdateUserRequest) (*models.User, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermUserManage) {
		return nil, apperr.PermissionDenied("requires user.manage permission")
	}

	user, err := s.tenantUser(actor, userID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Nickname != nil {
		updates["nickname"] = *req.Nickname
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.Model(user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	// Deactivation must take effect before the cache TTL would let a stale
	// grant through.
	if req.IsActive != nil && !*req.IsActive {
		s.resolver.Invalidate(user.ID)
	}

	return user, nil
}

func (s *UserService) Delete(actor authz.Actor, userID uint) error {
	if !s.resolver.HasTenantPermission(actor, authz.PermUserManage) {
		return apperr.PermissionDenied("requires user.manage permission")
	}
	if actor.ID == userID {
		return apperr.Validation("cannot delete your own account")
	}

	user, err := s.tenantUser(actor, userID)
	if err != nil {
		return err
	}

	// A sole owner's departure would leave the project unmanageable, since
	// membership is mandatory even for tenant admins.
	var soleOwnerships int64
	err = s.db.Model(&models.ProjectMember{}).
		Where("user_id = ? AND role = ?", user.ID, models.ProjectRoleOwner).
		Where("project_id NOT IN (?)",
			s.db.Model(&models.ProjectMember{}).Select("project_id").
				Where("role = ? AND user_id <> ?", models.ProjectRoleOwner, user.ID)).
		Count(&soleOwnerships).Error
	if err != nil {
		return err
	}
	if soleOwnerships > 0 {
		return apperr.Validation("user is the sole owner of a project; transfer ownership first")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM user_roles WHERE user_id = ?", user.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		return err
	}

	s.resolver.Invalidate(user.ID)
	return nil
}

func (s *UserService) tenantUser(actor authz.Actor, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.Preload("Roles").
		Where("id = ? AND tenant_id = ?", userID, actor.TenantID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &user, nil
}
