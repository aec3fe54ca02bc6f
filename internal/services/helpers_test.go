package services

import (
	"path/filepath"
	"testing"

	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// _txlock=immediate makes concurrent write transactions queue on the
	// busy timeout instead of deadlocking on a shared-to-reserved upgrade.
	dsn := filepath.Join(t.TempDir(), "services_test.db") + "?_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Tenant{}, &models.User{}, &models.Permission{}, &models.Role{},
		&models.Project{}, &models.ProjectMember{},
		&models.Task{}, &models.Label{}, &models.TaskField{}, &models.TaskHistory{},
		&models.Comment{}, &models.SystemConfig{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := authz.SeedCatalog(db); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	return db
}

// createMember creates a user holding every catalog permission and joins them
// to the project with the given role. Tests that exercise permission denial
// build their own narrower fixtures.
func createMember(t *testing.T, db *gorm.DB, tenantID uint, username string, projectID uint, projectRole string) authz.Actor {
	t.Helper()

	actor := createUserWithPerms(t, db, tenantID, username, authz.Keys()...)

	if projectID != 0 {
		member := models.ProjectMember{ProjectID: projectID, UserID: actor.ID, Role: projectRole}
		if err := db.Create(&member).Error; err != nil {
			t.Fatalf("failed to create membership: %v", err)
		}
	}
	return actor
}

func createUserWithPerms(t *testing.T, db *gorm.DB, tenantID uint, username string, permKeys ...string) authz.Actor {
	t.Helper()

	user := models.User{TenantID: tenantID, Username: username, IsActive: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}

	if len(permKeys) > 0 {
		var perms []models.Permission
		if err := db.Where("key IN ?", permKeys).Find(&perms).Error; err != nil {
			t.Fatalf("failed to load permissions: %v", err)
		}
		if len(perms) != len(permKeys) {
			t.Fatalf("expected %d permissions, found %d", len(permKeys), len(perms))
		}
		role := models.Role{TenantID: tenantID, Name: username + "-role", Permissions: perms}
		if err := db.Create(&role).Error; err != nil {
			t.Fatalf("failed to create role: %v", err)
		}
		if err := db.Model(&user).Association("Roles").Append(&role); err != nil {
			t.Fatalf("failed to assign role: %v", err)
		}
	}

	return authz.Actor{ID: user.ID, TenantID: user.TenantID, IsActive: true}
}

func createProject(t *testing.T, db *gorm.DB, tenantID uint, name string) *models.Project {
	t.Helper()
	project := models.Project{TenantID: tenantID, Name: name}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("failed to create project %s: %v", name, err)
	}
	return &project
}

func createTask(t *testing.T, db *gorm.DB, tenantID, projectID uint, title string) *models.Task {
	t.Helper()
	task := models.Task{
		TenantID:  tenantID,
		ProjectID: projectID,
		Title:     title,
		Status:    models.TaskStatusTodo,
		Priority:  models.TaskPriorityMedium,
		Version:   1,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("failed to create task %s: %v", title, err)
	}
	return &task
}

func strPtr(s string) *string { return &s }
