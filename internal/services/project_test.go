package services

import (
	"testing"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

func newProjectService(db *gorm.DB) *ProjectService {
	return NewProjectService(db, authz.NewResolver(db))
}

func TestProjectCreate_CreatorBecomesOwner(t *testing.T) {
	db := setupTestDB(t)
	svc := newProjectService(db)

	actor := createMember(t, db, 1, "alice", 0, "")

	project, err := svc.Create(actor, &CreateProjectRequest{Name: "Borealis"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var member models.ProjectMember
	if err := db.Where("project_id = ? AND user_id = ?", project.ID, actor.ID).First(&member).Error; err != nil {
		t.Fatalf("creator has no membership: %v", err)
	}
	if member.Role != models.ProjectRoleOwner {
		t.Errorf("creator role = %q, expected owner", member.Role)
	}
}

func TestUpdateMemberRole_LastOwnerCannotBeDemoted(t *testing.T) {
	db := setupTestDB(t)
	svc := newProjectService(db)

	owner := createMember(t, db, 1, "alice", 0, "")
	project, err := svc.Create(owner, &CreateProjectRequest{Name: "Borealis"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = svc.UpdateMemberRole(owner, project.ID, owner.ID, models.ProjectRoleMember)
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error demoting last owner, got %v", err)
	}

	// With a second owner the demotion goes through.
	other := createMember(t, db, 1, "bob", 0, "")
	if _, err := svc.AddMember(owner, project.ID, &MemberRequest{
		UserID: other.ID, Role: models.ProjectRoleOwner,
	}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	updated, err := svc.UpdateMemberRole(owner, project.ID, owner.ID, models.ProjectRoleMember)
	if err != nil {
		t.Fatalf("demotion with second owner failed: %v", err)
	}
	if updated.Role != models.ProjectRoleMember {
		t.Errorf("role = %q, expected member", updated.Role)
	}
}

func TestRemoveMember_LastOwnerCannotLeave(t *testing.T) {
	db := setupTestDB(t)
	svc := newProjectService(db)

	owner := createMember(t, db, 1, "alice", 0, "")
	project, err := svc.Create(owner, &CreateProjectRequest{Name: "Borealis"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.RemoveMember(owner, project.ID, owner.ID); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error removing last owner, got %v", err)
	}

	other := createMember(t, db, 1, "bob", 0, "")
	if _, err := svc.AddMember(owner, project.ID, &MemberRequest{
		UserID: other.ID, Role: models.ProjectRoleOwner,
	}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if err := svc.RemoveMember(owner, project.ID, owner.ID); err != nil {
		t.Fatalf("removal with second owner failed: %v", err)
	}
}

func TestAddMember_RequiresOwner(t *testing.T) {
	db := setupTestDB(t)
	svc := newProjectService(db)

	owner := createMember(t, db, 1, "alice", 0, "")
	project, err := svc.Create(owner, &CreateProjectRequest{Name: "Borealis"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// bob deliberately lacks admin.access so the admin bypass cannot apply.
	pm := createUserWithPerms(t, db, 1, "bob",
		authz.PermProjectUpdate, authz.PermTaskRead)
	db.Create(&models.ProjectMember{ProjectID: project.ID, UserID: pm.ID, Role: models.ProjectRolePM})

	stranger := createMember(t, db, 1, "carol", 0, "")

	// pm is not owner; roster management is owner-only.
	if _, err := svc.AddMember(pm, project.ID, &MemberRequest{
		UserID: stranger.ID, Role: models.ProjectRoleViewer,
	}); !apperr.IsPermissionDenied(err) {
		t.Fatalf("pm add member: expected permission denied, got %v", err)
	}

	if _, err := svc.AddMember(owner, project.ID, &MemberRequest{
		UserID: stranger.ID, Role: models.ProjectRoleViewer,
	}); err != nil {
		t.Fatalf("owner add member failed: %v", err)
	}

	// Duplicate membership is a validation error, the unique index is backup.
	if _, err := svc.AddMember(owner, project.ID, &MemberRequest{
		UserID: stranger.ID, Role: models.ProjectRoleMember,
	}); !apperr.IsValidation(err) {
		t.Fatalf("duplicate member: expected validation error, got %v", err)
	}
}

func TestProjectGet_CrossTenantReadsAsNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := newProjectService(db)

	owner := createMember(t, db, 1, "alice", 0, "")
	project, err := svc.Create(owner, &CreateProjectRequest{Name: "Borealis"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	outsider := createMember(t, db, 2, "eve", 0, "")
	if _, err := svc.Get(outsider, project.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestProjectDelete_CascadesTasksAndMembers(t *testing.T) {
	db := setupTestDB(t)
	svc := newProjectService(db)

	owner := createMember(t, db, 1, "alice", 0, "")
	project, err := svc.Create(owner, &CreateProjectRequest{Name: "Borealis"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	createTask(t, db, 1, project.ID, "Doomed")

	if err := svc.Delete(owner, project.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var taskCount, memberCount int64
	db.Model(&models.Task{}).Where("project_id = ?", project.ID).Count(&taskCount)
	db.Model(&models.ProjectMember{}).Where("project_id = ?", project.ID).Count(&memberCount)
	if taskCount != 0 || memberCount != 0 {
		t.Errorf("cascade left %d tasks, %d members", taskCount, memberCount)
	}
}
