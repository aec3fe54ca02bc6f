package services

import (
	"testing"

	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
)

func TestRoleRevoke_TakesEffectImmediately(t *testing.T) {
	db := setupTestDB(t)
	resolver := authz.NewResolver(db)
	svc := NewRoleService(db, resolver)

	admin := createMember(t, db, 1, "root", 0, "")

	var perms []models.Permission
	db.Where("key IN ?", []string{authz.PermTaskUpdate}).Find(&perms)
	role := models.Role{TenantID: 1, Name: "editor", Permissions: perms}
	db.Create(&role)

	user := models.User{TenantID: 1, Username: "dave", IsActive: true}
	db.Create(&user)
	actor := authz.Actor{ID: user.ID, TenantID: 1, IsActive: true}

	if err := svc.Assign(admin, user.ID, role.ID); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if !resolver.HasTenantPermission(actor, authz.PermTaskUpdate) {
		t.Fatal("expected permission after assignment")
	}

	// Revocation must bypass the cache TTL via explicit invalidation.
	if err := svc.Revoke(admin, user.ID, role.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if resolver.HasTenantPermission(actor, authz.PermTaskUpdate) {
		t.Error("permission survived revocation")
	}
}

func TestRoleUpdate_InvalidatesAllHolders(t *testing.T) {
	db := setupTestDB(t)
	resolver := authz.NewResolver(db)
	svc := NewRoleService(db, resolver)

	admin := createMember(t, db, 1, "root", 0, "")

	role, err := svc.Create(admin, &RoleRequest{
		Name:        "editor",
		Permissions: []string{authz.PermTaskUpdate},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	user := models.User{TenantID: 1, Username: "dave", IsActive: true}
	db.Create(&user)
	actor := authz.Actor{ID: user.ID, TenantID: 1, IsActive: true}

	if err := svc.Assign(admin, user.ID, role.ID); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if !resolver.HasTenantPermission(actor, authz.PermTaskUpdate) {
		t.Fatal("expected permission after assignment")
	}

	// Shrinking the bundle must reach every cached holder.
	if _, err := svc.Update(admin, role.ID, &RoleRequest{
		Name:        "editor",
		Permissions: []string{authz.PermTaskRead},
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if resolver.HasTenantPermission(actor, authz.PermTaskUpdate) {
		t.Error("task.update survived the bundle change")
	}
	if !resolver.HasTenantPermission(actor, authz.PermTaskRead) {
		t.Error("task.read missing after the bundle change")
	}
}

func TestEnsureDefaultRoles_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := EnsureDefaultRoles(db, 1); err != nil {
		t.Fatalf("first seed failed: %v", err)
	}
	if err := EnsureDefaultRoles(db, 1); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}

	var count int64
	db.Model(&models.Role{}).Where("tenant_id = ? AND is_system = ?", 1, true).Count(&count)
	if count != 2 {
		t.Errorf("system roles = %d, expected 2", count)
	}

	var adminRole models.Role
	if err := db.Preload("Permissions").Where("tenant_id = ? AND name = ?", 1, "Admin").First(&adminRole).Error; err != nil {
		t.Fatalf("Admin role missing: %v", err)
	}
	if len(adminRole.Permissions) != len(authz.Catalog) {
		t.Errorf("Admin role has %d permissions, expected full catalog %d",
			len(adminRole.Permissions), len(authz.Catalog))
	}
}
