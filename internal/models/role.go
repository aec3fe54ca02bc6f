package models

import (
	"time"

	"gorm.io/gorm"
)

// Permission is an opaque capability key (e.g. "task.update") from the global
// catalog. Immutable once created; not tenant-scoped.
type Permission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"uniqueIndex;size:100;not null" json:"key"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Permission) TableName() string { return "permissions" }

// Role is a named, tenant-scoped bundle of permissions. A user's effective
// tenant-wide permission set is the union over all assigned roles.
type Role struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TenantID    uint           `gorm:"uniqueIndex:idx_tenant_role_name;not null" json:"tenant_id"`
	Name        string         `gorm:"uniqueIndex:idx_tenant_role_name;size:100;not null" json:"name"`
	Description string         `gorm:"size:255" json:"description"`
	IsSystem    bool           `gorm:"default:false" json:"is_system"` // seeded roles cannot be deleted
	Permissions []Permission   `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Role) TableName() string { return "roles" }
