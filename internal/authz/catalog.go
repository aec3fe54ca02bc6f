package authz

import (
	"sort"

	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

// Permission keys. These are opaque capability identifiers checked against a
// user's role-derived set; they are global, not tenant-scoped.
const (
	// Holding admin.access makes an actor "admin-equivalent": it bypasses the
	// project role-rank check (membership is still required).
	PermAdminAccess = "admin.access"

	PermUserManage = "user.manage"
	PermRoleManage = "role.manage"

	PermProjectCreate        = "project.create"
	PermProjectUpdate        = "project.update"
	PermProjectDelete        = "project.delete"
	PermProjectMembersManage = "project.members.manage"

	PermTaskCreate = "task.create"
	PermTaskRead   = "task.read"
	PermTaskUpdate = "task.update"
	PermTaskDelete = "task.delete"

	PermCommentCreate = "comment.create"
	PermCommentUpdate = "comment.update"
	PermCommentDelete = "comment.delete"

	PermLabelManage = "label.manage"

	PermHistoryRead = "task.history.read"
)

// Catalog maps every known permission key to its human description. It is the
// source for seeding the permissions table and has no logic of its own.
var Catalog = map[string]string{
	PermAdminAccess:          "Full administrative access within the tenant",
	PermUserManage:           "Create, update and deactivate users",
	PermRoleManage:           "Manage roles and role assignments",
	PermProjectCreate:        "Create projects",
	PermProjectUpdate:        "Update project settings",
	PermProjectDelete:        "Delete or archive projects",
	PermProjectMembersManage: "Add, update and remove project members",
	PermTaskCreate:           "Create tasks",
	PermTaskRead:             "View tasks",
	PermTaskUpdate:           "Update task fields, labels and custom fields",
	PermTaskDelete:           "Delete tasks",
	PermCommentCreate:        "Comment on tasks",
	PermCommentUpdate:        "Edit own comments",
	PermCommentDelete:        "Delete comments",
	PermLabelManage:          "Manage tenant labels",
	PermHistoryRead:          "View task change history",
}

// Describe returns the description for a permission key.
func Describe(key string) (string, bool) {
	desc, ok := Catalog[key]
	return desc, ok
}

// Keys returns all catalog keys in stable order.
func Keys() []string {
	keys := make([]string, 0, len(Catalog))
	for k := range Catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SeedCatalog inserts any catalog permissions missing from the database.
// Existing rows are left untouched; permission rows are immutable once created.
func SeedCatalog(db *gorm.DB) error {
	for _, key := range Keys() {
		var count int64
		if err := db.Model(&models.Permission{}).Where("key = ?", key).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			perm := models.Permission{Key: key, Description: Catalog[key]}
			if err := db.Create(&perm).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
