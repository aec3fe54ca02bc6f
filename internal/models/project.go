package models

import (
	"time"

	"gorm.io/gorm"
)

// Project groups tasks inside a tenant. Access is possible only through a
// ProjectMember row — tenant-wide roles grant no implicit project access.
type Project struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TenantID      uint           `gorm:"index;not null" json:"tenant_id"`
	Name          string         `gorm:"size:200;not null" json:"name"`
	Key           string         `gorm:"size:20" json:"key"` // short code used in task references, e.g. "TT"
	Description   string         `gorm:"type:text" json:"description"`
	Archived      bool           `gorm:"default:false" json:"archived"`
	WebhookURL    string         `gorm:"size:500" json:"webhook_url"`
	NotifyEnabled bool           `gorm:"default:false" json:"notify_enabled"`
	CreatedBy     uint           `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "projects" }

// Project-scoped role labels. This is a closed set, separate from tenant-wide
// roles. Comparison is exact-match; only "owner" (and tenant admins) bypass
// the required-role check.
const (
	ProjectRoleOwner  = "owner"
	ProjectRolePM     = "pm"
	ProjectRoleMember = "member"
	ProjectRoleViewer = "viewer"
)

// ValidProjectRole reports whether role is one of the closed set of labels.
func ValidProjectRole(role string) bool {
	switch role {
	case ProjectRoleOwner, ProjectRolePM, ProjectRoleMember, ProjectRoleViewer:
		return true
	}
	return false
}

// ProjectMember ties exactly one (project, user) pair to exactly one role label.
type ProjectMember struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ProjectID uint           `gorm:"uniqueIndex:idx_project_user;not null" json:"project_id"`
	Project   *Project       `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	UserID    uint           `gorm:"uniqueIndex:idx_project_user;not null" json:"user_id"`
	User      *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      string         `gorm:"size:50;default:viewer" json:"role"` // owner, pm, member, viewer
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ProjectMember) TableName() string { return "project_members" }
