package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultTenantID is the tenant created by SeedDefaultData. Single-tenant
// deployments never see another one.
const DefaultTenantID uint = 1

// Tenant is the isolation boundary. All users, roles, projects and tasks
// belong to exactly one tenant; lookups never cross it.
type Tenant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:200;not null" json:"name"`
	Slug      string         `gorm:"uniqueIndex;size:100;not null" json:"slug"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Tenant) TableName() string { return "tenants" }
