package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an authenticated account within a tenant. Tenant-wide
// capabilities come exclusively from assigned roles; project access comes
// exclusively from project memberships.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TenantID  uint           `gorm:"uniqueIndex:idx_tenant_username;not null" json:"tenant_id"`
	Username  string         `gorm:"uniqueIndex:idx_tenant_username;size:100;not null" json:"username"`
	Password  string         `gorm:"size:255" json:"-"` // Hashed password, empty for LDAP users
	Email     string         `gorm:"size:255" json:"email"`
	Nickname  string         `gorm:"size:100" json:"nickname"`
	AuthType  string         `gorm:"size:20;default:local" json:"auth_type"` // local, ldap
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	Roles     []Role         `gorm:"many2many:user_roles;" json:"roles,omitempty"`
	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }
