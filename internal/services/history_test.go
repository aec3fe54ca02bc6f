package services

import (
	"testing"
	"time"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
)

func TestHistoryList_MostRecentFirst(t *testing.T) {
	db := setupTestDB(t)
	taskSvc := newTaskService(db)
	historySvc := NewHistoryService(db, authz.NewResolver(db))

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Chronicled")

	statuses := []string{
		models.TaskStatusInProgress,
		models.TaskStatusInReview,
		models.TaskStatusDone,
	}
	for i, status := range statuses {
		if _, err := taskSvc.Mutate(actor, task.ID, i+1, &TaskChanges{
			Status: strPtr(status),
		}); err != nil {
			t.Fatalf("mutation %d failed: %v", i+1, err)
		}
	}

	resp, err := historySvc.List(actor, task.ID, &HistoryListRequest{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("got %d entries, expected 3", len(resp.Items))
	}

	// Most recent first; entries sharing a timestamp fall back to the
	// autoincrement id, so the order stays stable either way.
	for i := 0; i < len(resp.Items)-1; i++ {
		a, b := resp.Items[i], resp.Items[i+1]
		if a.CreatedAt.Before(b.CreatedAt) {
			t.Errorf("entry %d is older than entry %d", i, i+1)
		}
		if a.CreatedAt.Equal(b.CreatedAt) && a.ID < b.ID {
			t.Errorf("tie at index %d not broken by id descending", i)
		}
	}

	// The newest entry must describe the latest transition.
	changes, err := resp.Items[0].Changes()
	if err != nil {
		t.Fatalf("failed to decode newest diff: %v", err)
	}
	if changes["status"].To != models.TaskStatusDone {
		t.Errorf("newest diff To = %v, expected done", changes["status"].To)
	}
}

func TestHistoryList_TiesBrokenByInsertionOrder(t *testing.T) {
	db := setupTestDB(t)
	historySvc := NewHistoryService(db, authz.NewResolver(db))

	project := createProject(t, db, 1, "Apollo")
	actor := createMember(t, db, 1, "alice", project.ID, models.ProjectRoleMember)
	task := createTask(t, db, 1, project.ID, "Same instant")

	// Force identical timestamps to exercise the id tiebreaker.
	now := time.Now().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		entry := models.TaskHistory{
			TaskID:    task.ID,
			ActorID:   actor.ID,
			Diff:      `{"title":{"from":"a","to":"b"}}`,
			CreatedAt: now,
		}
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("failed to insert entry: %v", err)
		}
	}

	resp, err := historySvc.List(actor, task.ID, &HistoryListRequest{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("got %d entries, expected 3", len(resp.Items))
	}
	for i := 0; i < len(resp.Items)-1; i++ {
		if resp.Items[i].ID < resp.Items[i+1].ID {
			t.Errorf("expected descending ids at index %d: %d then %d",
				i, resp.Items[i].ID, resp.Items[i+1].ID)
		}
	}
}

func TestHistoryList_Visibility(t *testing.T) {
	db := setupTestDB(t)
	historySvc := NewHistoryService(db, authz.NewResolver(db))

	project := createProject(t, db, 1, "Apollo")
	task := createTask(t, db, 1, project.ID, "Guarded")

	outsider := createMember(t, db, 2, "eve", 0, "")
	if _, err := historySvc.List(outsider, task.ID, &HistoryListRequest{}); !apperr.IsNotFound(err) {
		t.Errorf("cross-tenant: expected not found, got %v", err)
	}

	nonMember := createMember(t, db, 1, "mallory", 0, "")
	if _, err := historySvc.List(nonMember, task.ID, &HistoryListRequest{}); !apperr.IsPermissionDenied(err) {
		t.Errorf("non-member: expected permission denied, got %v", err)
	}
}
