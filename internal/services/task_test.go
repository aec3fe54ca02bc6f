package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

func newTaskService(db *gorm.DB) *TaskService {
	return NewTaskService(db, authz.NewResolver(db))
}

func TestCreate_VersionStartsAtOne(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)

	task, err := svc.Create(actor, &CreateTaskRequest{
		ProjectID: project.ID,
		Title:     "Wire up the deployment pipeline",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.Version != 1 {
		t.Errorf("Version = %d, expected 1", task.Version)
	}
	if task.Status != models.TaskStatusTodo {
		t.Errorf("Status = %q, expected default todo", task.Status)
	}

	var historyCount int64
	db.Model(&models.TaskHistory{}).Where("task_id = ?", task.ID).Count(&historyCount)
	if historyCount != 0 {
		t.Errorf("creation wrote %d history entries, expected 0", historyCount)
	}
}

func TestMutate_BumpsVersionAndRecordsHistory(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Fix login redirect")

	result, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusInProgress),
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if result.NewVersion != 2 {
		t.Errorf("NewVersion = %d, expected 2", result.NewVersion)
	}

	change, ok := result.Applied["status"]
	if !ok {
		t.Fatal("expected status in applied diff")
	}
	if change.From != models.TaskStatusTodo || change.To != models.TaskStatusInProgress {
		t.Errorf("diff = %v -> %v, expected todo -> in_progress", change.From, change.To)
	}

	var entries []models.TaskHistory
	db.Where("task_id = ?", task.ID).Find(&entries)
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, expected exactly 1", len(entries))
	}
	changes, err := entries[0].Changes()
	if err != nil {
		t.Fatalf("failed to decode history diff: %v", err)
	}
	if _, ok := changes["status"]; !ok {
		t.Error("history diff missing status change")
	}
	if entries[0].ActorID != actor.ID {
		t.Errorf("history actor = %d, expected %d", entries[0].ActorID, actor.ID)
	}
}

func TestMutate_StaleVersionConflict(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Fix login redirect")

	if _, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusInProgress),
	}); err != nil {
		t.Fatalf("first Mutate() error = %v", err)
	}

	// Replay with the now-stale version.
	_, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusDone),
	})
	if !apperr.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	// The losing write must leave no trace: same version, same status,
	// exactly one history entry.
	var current models.Task
	db.First(&current, task.ID)
	if current.Version != 2 {
		t.Errorf("Version = %d, expected 2", current.Version)
	}
	if current.Status != models.TaskStatusInProgress {
		t.Errorf("Status = %q, expected in_progress", current.Status)
	}

	var historyCount int64
	db.Model(&models.TaskHistory{}).Where("task_id = ?", task.ID).Count(&historyCount)
	if historyCount != 1 {
		t.Errorf("history has %d entries, expected 1", historyCount)
	}
}

func TestMutate_ConcurrentWritersExactlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Race me")

	const writers = 8
	statuses := []string{
		models.TaskStatusInProgress, models.TaskStatusInReview,
		models.TaskStatusDone, models.TaskStatusCancelled,
	}

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Mutate(actor, task.ID, 1, &TaskChanges{
				Status: strPtr(statuses[i%len(statuses)]),
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !apperr.IsVersionConflict(err) {
			t.Errorf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d writers succeeded, expected exactly 1", wins)
	}

	var current models.Task
	db.First(&current, task.ID)
	if current.Version != 2 {
		t.Errorf("Version = %d, expected 2 after one accepted write", current.Version)
	}

	var historyCount int64
	db.Model(&models.TaskHistory{}).Where("task_id = ?", task.ID).Count(&historyCount)
	if historyCount != 1 {
		t.Errorf("history has %d entries, expected 1", historyCount)
	}
}

func TestMutate_NoOpDoesNotConsumeVersion(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Steady state")

	result, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusTodo), // already todo
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if result.NewVersion != 1 {
		t.Errorf("NewVersion = %d, expected unchanged 1", result.NewVersion)
	}
	if len(result.Applied) != 0 {
		t.Errorf("Applied = %v, expected empty diff", result.Applied)
	}

	var historyCount int64
	db.Model(&models.TaskHistory{}).Where("task_id = ?", task.ID).Count(&historyCount)
	if historyCount != 0 {
		t.Errorf("no-op wrote %d history entries, expected 0", historyCount)
	}
}

func TestMutate_EmptyChangesRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Untouched")

	_, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMutate_TwoStageVisibility(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	task := createTask(t, db, 1, project.ID, "Tenant-private")

	// Cross-tenant actor: the task must read as missing, not forbidden.
	outsider := createMember(t, db, 2, "eve", 0, "")
	_, err := svc.Mutate(outsider, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusDone),
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("cross-tenant access: expected not found, got %v", err)
	}

	// Same tenant but no membership: the task exists, access is denied.
	nonMember := createMember(t, db, 1, "mallory", 0, "")
	_, err = svc.Mutate(nonMember, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusDone),
	})
	if !apperr.IsPermissionDenied(err) {
		t.Fatalf("non-member access: expected permission denied, got %v", err)
	}
}

func TestMutate_ConflictLeavesLabelsAndFieldsUntouched(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Labelled")

	bug := models.Label{TenantID: 1, Name: "bug"}
	feature := models.Label{TenantID: 1, Name: "feature"}
	db.Create(&bug)
	db.Create(&feature)

	labelIDs := []uint{bug.ID}
	fields := map[string]string{"severity": "high"}
	if _, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		LabelIDs: &labelIDs,
		Fields:   &fields,
	}); err != nil {
		t.Fatalf("setup mutation failed: %v", err)
	}

	// Stale replacement attempt: labels and fields must survive the conflict.
	staleLabels := []uint{feature.ID}
	staleFields := map[string]string{"severity": "low"}
	_, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		LabelIDs: &staleLabels,
		Fields:   &staleFields,
	})
	if !apperr.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	var current models.Task
	db.Preload("Labels").First(&current, task.ID)
	if len(current.Labels) != 1 || current.Labels[0].Name != "bug" {
		t.Errorf("labels = %v, expected [bug]", current.Labels)
	}

	var fieldRows []models.TaskField
	db.Where("task_id = ?", task.ID).Find(&fieldRows)
	if len(fieldRows) != 1 || fieldRows[0].Value != "high" {
		t.Errorf("fields = %v, expected severity=high", fieldRows)
	}
}

func TestMutate_VersionConflictReportsCurrentVersion(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Versioned")

	if _, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusInProgress),
	}); err != nil {
		t.Fatalf("setup mutation failed: %v", err)
	}

	_, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		Status: strPtr(models.TaskStatusDone),
	})

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected app error, got %v", err)
	}
	if appErr.Kind != apperr.KindVersionConflict {
		t.Fatalf("Kind = %v, expected version conflict", appErr.Kind)
	}
}

func TestMutate_InvalidStatusRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Strict")

	_, err := svc.Mutate(actor, task.ID, 1, &TaskChanges{
		Status: strPtr("blocked"),
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	var current models.Task
	db.First(&current, task.ID)
	if current.Version != 1 {
		t.Errorf("rejected mutation consumed a version: %d", current.Version)
	}
}

func TestDelete_RequiresPMRole(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")

	// Plain member without admin.access, so the role requirement applies.
	member := createUserWithPerms(t, db, 1, "bob",
		authz.PermTaskRead, authz.PermTaskDelete)
	db.Create(&models.ProjectMember{ProjectID: project.ID, UserID: member.ID, Role: models.ProjectRoleMember})

	pm := createUserWithPerms(t, db, 1, "carol",
		authz.PermTaskRead, authz.PermTaskDelete)
	db.Create(&models.ProjectMember{ProjectID: project.ID, UserID: pm.ID, Role: models.ProjectRolePM})

	task := createTask(t, db, 1, project.ID, "Disposable")

	if err := svc.Delete(member, task.ID); !apperr.IsPermissionDenied(err) {
		t.Fatalf("member delete: expected permission denied, got %v", err)
	}

	if err := svc.Delete(pm, task.ID); err != nil {
		t.Fatalf("pm delete failed: %v", err)
	}

	var count int64
	db.Model(&models.Task{}).Where("id = ?", task.ID).Count(&count)
	if count != 0 {
		t.Error("task should be soft-deleted")
	}
}

func TestGet_CrossTenantReadsAsNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := newTaskService(db)

	project := createProject(t, db, 1, "Apollo")
	task := createTask(t, db, 1, project.ID, "Private")

	outsider := createMember(t, db, 2, "eve", 0, "")
	_, err := svc.Get(outsider, task.ID)
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
