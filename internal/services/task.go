package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/pkg/logger"
	"gorm.io/gorm"
)

// TaskService owns task CRUD and the optimistic-concurrency mutation path.
// The version column on tasks is the single point of mutual exclusion: the
// commit is a conditional UPDATE keyed on the expected version, never a
// separate read-then-write pair.
type TaskService struct {
	db       *gorm.DB
	resolver *authz.Resolver
	events   EventQueue
}

func NewTaskService(db *gorm.DB, resolver *authz.Resolver) *TaskService {
	return &TaskService{db: db, resolver: resolver}
}

// SetEventQueue wires the post-commit event fanout. Optional; nil disables it.
func (s *TaskService) SetEventQueue(q EventQueue) {
	s.events = q
}

type TaskListRequest struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
	ProjectID  *uint  `form:"project_id"`
	Status     string `form:"status"`
	Priority   string `form:"priority"`
	AssigneeID *uint  `form:"assignee_id"`
	Search     string `form:"search"`
}

type TaskListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.Task `json:"items"`
}

type CreateTaskRequest struct {
	ProjectID   uint       `json:"project_id" binding:"required"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeID  *uint      `json:"assignee_id"`
	ParentID    *uint      `json:"parent_id"`
	DueDate     *time.Time `json:"due_date"`
	LabelIDs    []uint     `json:"label_ids"`
	Fields      map[string]string `json:"fields"`
}

// TaskChanges is a sparse field-update set: only non-nil fields are applied.
// LabelIDs and Fields replace the whole child set when present.
type TaskChanges struct {
	Title         *string            `json:"title"`
	Description   *string            `json:"description"`
	Status        *string            `json:"status"`
	Priority      *string            `json:"priority"`
	AssigneeID    *uint              `json:"assignee_id"`
	ClearAssignee bool               `json:"clear_assignee"`
	ParentID      *uint              `json:"parent_id"`
	DueDate       *time.Time         `json:"due_date"`
	ClearDueDate  bool               `json:"clear_due_date"`
	LabelIDs      *[]uint            `json:"label_ids"`
	Fields        *map[string]string `json:"fields"`
}

func (c *TaskChanges) isEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil &&
		c.Priority == nil && c.AssigneeID == nil && !c.ClearAssignee &&
		c.ParentID == nil && c.DueDate == nil && !c.ClearDueDate &&
		c.LabelIDs == nil && c.Fields == nil
}

// MutationResult reports the outcome of an accepted mutation.
type MutationResult struct {
	TaskID     uint                          `json:"task_id"`
	NewVersion int                           `json:"new_version"`
	Applied    map[string]models.FieldChange `json:"applied"`
}

// List returns tasks visible to the actor: either one project (membership
// checked) or all projects the actor is a member of.
func (s *TaskService) List(actor authz.Actor, req *TaskListRequest) (*TaskListResponse, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermTaskRead) {
		return nil, apperr.PermissionDenied("requires task.read permission")
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.Task{}).Where("tasks.tenant_id = ?", actor.TenantID)

	if req.ProjectID != nil {
		if d := s.resolver.CheckProjectAccess(actor, *req.ProjectID, ""); !d.Allowed {
			return nil, apperr.PermissionDenied(d.Reason)
		}
		query = query.Where("tasks.project_id = ?", *req.ProjectID)
	} else {
		query = query.Where(
			"tasks.project_id IN (?)",
			s.db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", actor.ID),
		)
	}

	if req.Status != "" {
		query = query.Where("tasks.status = ?", req.Status)
	}
	if req.Priority != "" {
		query = query.Where("tasks.priority = ?", req.Priority)
	}
	if req.AssigneeID != nil {
		query = query.Where("tasks.assignee_id = ?", *req.AssigneeID)
	}
	if req.Search != "" {
		query = query.Where("tasks.title LIKE ?", "%"+req.Search+"%")
	}

	var total int64
	query.Count(&total)

	var tasks []models.Task
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Labels").Preload("Assignee").
		Order("tasks.created_at DESC").
		Offset(offset).Limit(req.PageSize).
		Find(&tasks).Error; err != nil {
		return nil, err
	}

	return &TaskListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    tasks,
	}, nil
}

// Get returns a task after the two-stage visibility check: tenant scope first
// (cross-tenant objects are plain NotFound), project membership second.
func (s *TaskService) Get(actor authz.Actor, taskID uint) (*models.Task, error) {
	task, err := s.visibleTask(s.db, actor, taskID)
	if err != nil {
		return nil, err
	}
	if !s.resolver.HasTenantPermission(actor, authz.PermTaskRead) {
		return nil, apperr.PermissionDenied("requires task.read permission")
	}
	if err := s.db.Preload("Labels").Preload("Assignee").First(task, task.ID).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// Create inserts a task at version 1.
func (s *TaskService) Create(actor authz.Actor, req *CreateTaskRequest) (*models.Task, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermTaskCreate) {
		return nil, apperr.PermissionDenied("requires task.create permission")
	}

	var project models.Project
	if err := s.db.Where("id = ? AND tenant_id = ?", req.ProjectID, actor.TenantID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("project")
		}
		return nil, err
	}
	if d := s.resolver.CheckProjectAccess(actor, project.ID, ""); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}

	if req.Status == "" {
		req.Status = models.TaskStatusTodo
	}
	if req.Priority == "" {
		req.Priority = models.TaskPriorityMedium
	}
	if !models.ValidTaskStatus(req.Status) {
		return nil, apperr.Validation("invalid status: " + req.Status)
	}
	if !models.ValidTaskPriority(req.Priority) {
		return nil, apperr.Validation("invalid priority: " + req.Priority)
	}
	if req.AssigneeID != nil {
		if err := s.validateAssignee(s.db, actor.TenantID, *req.AssigneeID); err != nil {
			return nil, err
		}
	}
	if req.ParentID != nil {
		if err := s.validateParent(s.db, actor.TenantID, project.ID, *req.ParentID, 0); err != nil {
			return nil, err
		}
	}

	labels, err := s.loadLabels(s.db, actor.TenantID, req.LabelIDs)
	if err != nil {
		return nil, err
	}

	task := models.Task{
		TenantID:    actor.TenantID,
		ProjectID:   project.ID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		ParentID:    req.ParentID,
		DueDate:     req.DueDate,
		Version:     1,
		Labels:      labels,
		CreatedBy:   actor.ID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		for key, value := range req.Fields {
			field := models.TaskField{TaskID: task.ID, Key: key, Value: value}
			if err := tx.Create(&field).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(&TaskEvent{
		Type:       TaskEventCreated,
		TaskID:     task.ID,
		ProjectID:  task.ProjectID,
		TenantID:   task.TenantID,
		ActorID:    actor.ID,
		Title:      task.Title,
		OccurredAt: time.Now(),
	})

	return &task, nil
}

// Mutate applies a sparse update under optimistic concurrency control.
//
// Within one transaction: the task is loaded tenant-scoped, input is fully
// validated, then a single conditional UPDATE keyed on the expected version
// bumps it by exactly 1. If the stored version moved, the whole unit fails
// with a version conflict and nothing — including label and custom-field
// replacements — is changed. Exactly one history entry is written in the same
// transaction as an accepted mutation. No automatic retry happens here; retry
// is a caller decision.
func (s *TaskService) Mutate(actor authz.Actor, taskID uint, expectedVersion int, changes *TaskChanges) (*MutationResult, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermTaskUpdate) {
		return nil, apperr.PermissionDenied("requires task.update permission")
	}
	if changes == nil || changes.isEmpty() {
		return nil, apperr.Validation("no changes provided")
	}

	var result *MutationResult
	var event *TaskEvent

	err := s.db.Transaction(func(tx *gorm.DB) error {
		task, err := s.visibleTask(tx, actor, taskID)
		if err != nil {
			return err
		}
		if d := s.resolver.CheckProjectAccess(actor, task.ProjectID, ""); !d.Allowed {
			return apperr.PermissionDenied(d.Reason)
		}

		// Fast-path staleness check. The conditional UPDATE below remains the
		// authoritative guard against racing writers.
		if task.Version != expectedVersion {
			return apperr.VersionConflict(expectedVersion, task.Version)
		}

		updates, diff, err := s.planFieldChanges(tx, actor, task, changes)
		if err != nil {
			return err
		}

		var newLabels []models.Label
		labelsChanged := false
		if changes.LabelIDs != nil {
			newLabels, err = s.loadLabels(tx, actor.TenantID, *changes.LabelIDs)
			if err != nil {
				return err
			}
			labelsChanged = !equalStrings(labelNames(task.Labels), labelNames(newLabels))
		}

		var oldFields map[string]string
		fieldsChanged := false
		if changes.Fields != nil {
			oldFields, err = s.taskFieldMap(tx, task.ID)
			if err != nil {
				return err
			}
			fieldsChanged = !equalStringMaps(oldFields, *changes.Fields)
		}

		// Everything requested already matches the stored state: accept as a
		// no-op without consuming a version or fabricating a history entry.
		if len(updates) == 0 && !labelsChanged && !fieldsChanged {
			result = &MutationResult{TaskID: task.ID, NewVersion: task.Version, Applied: diff}
			return nil
		}

		newVersion := expectedVersion + 1
		updates["version"] = newVersion

		res := tx.Model(&models.Task{}).
			Where("id = ? AND version = ?", task.ID, expectedVersion).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another writer advanced the version between our read and the
			// conditional write. Surface the now-current version.
			var current models.Task
			if err := tx.Select("version").First(&current, task.ID).Error; err == nil {
				return apperr.VersionConflict(expectedVersion, current.Version)
			}
			return apperr.VersionConflict(expectedVersion, 0)
		}

		if labelsChanged {
			diff["labels"] = models.FieldChange{From: labelNames(task.Labels), To: labelNames(newLabels)}
			if err := tx.Model(task).Association("Labels").Replace(&newLabels); err != nil {
				return err
			}
		}

		if fieldsChanged {
			diff["fields"] = models.FieldChange{From: oldFields, To: *changes.Fields}
			if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskField{}).Error; err != nil {
				return err
			}
			for key, value := range *changes.Fields {
				field := models.TaskField{TaskID: task.ID, Key: key, Value: value}
				if err := tx.Create(&field).Error; err != nil {
					return err
				}
			}
		}

		if err := recordHistory(tx, task.ID, actor.ID, diff); err != nil {
			return err
		}

		result = &MutationResult{TaskID: task.ID, NewVersion: newVersion, Applied: diff}
		event = &TaskEvent{
			Type:       TaskEventUpdated,
			TaskID:     task.ID,
			ProjectID:  task.ProjectID,
			TenantID:   task.TenantID,
			ActorID:    actor.ID,
			Title:      task.Title,
			Changes:    diff,
			OccurredAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(event)
	return result, nil
}

// Delete soft-deletes a task. Requires a pm membership (owners and tenant
// admins bypass) on top of the task.delete tenant permission.
func (s *TaskService) Delete(actor authz.Actor, taskID uint) error {
	if !s.resolver.HasTenantPermission(actor, authz.PermTaskDelete) {
		return apperr.PermissionDenied("requires task.delete permission")
	}

	task, err := s.visibleTask(s.db, actor, taskID)
	if err != nil {
		return err
	}
	if d := s.resolver.CheckProjectAccess(actor, task.ProjectID, models.ProjectRolePM); !d.Allowed {
		return apperr.PermissionDenied(d.Reason)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskField{}).Error; err != nil {
			return err
		}
		return tx.Delete(task).Error
	})
	if err != nil {
		return err
	}

	s.publish(&TaskEvent{
		Type:       TaskEventDeleted,
		TaskID:     task.ID,
		ProjectID:  task.ProjectID,
		TenantID:   task.TenantID,
		ActorID:    actor.ID,
		Title:      task.Title,
		OccurredAt: time.Now(),
	})
	return nil
}

// visibleTask implements the two-stage check's first stage: lookups are
// scoped by tenant, so cross-tenant IDs are indistinguishable from missing
// ones. Labels are preloaded for diffing.
func (s *TaskService) visibleTask(db *gorm.DB, actor authz.Actor, taskID uint) (*models.Task, error) {
	var task models.Task
	err := db.Preload("Labels").
		Where("id = ? AND tenant_id = ?", taskID, actor.TenantID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}
	return &task, nil
}

// planFieldChanges validates the sparse update and returns the column update
// map plus the old/new diff restricted to fields that actually change.
func (s *TaskService) planFieldChanges(tx *gorm.DB, actor authz.Actor, task *models.Task, changes *TaskChanges) (map[string]interface{}, map[string]models.FieldChange, error) {
	updates := make(map[string]interface{})
	diff := make(map[string]models.FieldChange)

	if changes.Title != nil {
		if *changes.Title == "" {
			return nil, nil, apperr.Validation("title cannot be empty")
		}
		if *changes.Title != task.Title {
			updates["title"] = *changes.Title
			diff["title"] = models.FieldChange{From: task.Title, To: *changes.Title}
		}
	}
	if changes.Description != nil && *changes.Description != task.Description {
		updates["description"] = *changes.Description
		diff["description"] = models.FieldChange{From: task.Description, To: *changes.Description}
	}
	if changes.Status != nil {
		if !models.ValidTaskStatus(*changes.Status) {
			return nil, nil, apperr.Validation("invalid status: " + *changes.Status)
		}
		if *changes.Status != task.Status {
			updates["status"] = *changes.Status
			diff["status"] = models.FieldChange{From: task.Status, To: *changes.Status}
		}
	}
	if changes.Priority != nil {
		if !models.ValidTaskPriority(*changes.Priority) {
			return nil, nil, apperr.Validation("invalid priority: " + *changes.Priority)
		}
		if *changes.Priority != task.Priority {
			updates["priority"] = *changes.Priority
			diff["priority"] = models.FieldChange{From: task.Priority, To: *changes.Priority}
		}
	}
	if changes.ClearAssignee {
		if task.AssigneeID != nil {
			updates["assignee_id"] = nil
			diff["assignee_id"] = models.FieldChange{From: *task.AssigneeID, To: nil}
		}
	} else if changes.AssigneeID != nil {
		if err := s.validateAssignee(tx, actor.TenantID, *changes.AssigneeID); err != nil {
			return nil, nil, err
		}
		if task.AssigneeID == nil || *task.AssigneeID != *changes.AssigneeID {
			var from interface{}
			if task.AssigneeID != nil {
				from = *task.AssigneeID
			}
			updates["assignee_id"] = *changes.AssigneeID
			diff["assignee_id"] = models.FieldChange{From: from, To: *changes.AssigneeID}
		}
	}
	if changes.ParentID != nil {
		if err := s.validateParent(tx, actor.TenantID, task.ProjectID, *changes.ParentID, task.ID); err != nil {
			return nil, nil, err
		}
		if task.ParentID == nil || *task.ParentID != *changes.ParentID {
			var from interface{}
			if task.ParentID != nil {
				from = *task.ParentID
			}
			updates["parent_id"] = *changes.ParentID
			diff["parent_id"] = models.FieldChange{From: from, To: *changes.ParentID}
		}
	}
	if changes.ClearDueDate {
		if task.DueDate != nil {
			updates["due_date"] = nil
			diff["due_date"] = models.FieldChange{From: task.DueDate.Format(time.RFC3339), To: nil}
		}
	} else if changes.DueDate != nil {
		if task.DueDate == nil || !task.DueDate.Equal(*changes.DueDate) {
			var from interface{}
			if task.DueDate != nil {
				from = task.DueDate.Format(time.RFC3339)
			}
			updates["due_date"] = *changes.DueDate
			diff["due_date"] = models.FieldChange{From: from, To: changes.DueDate.Format(time.RFC3339)}
		}
	}

	return updates, diff, nil
}

func (s *TaskService) validateAssignee(db *gorm.DB, tenantID, userID uint) error {
	var count int64
	err := db.Model(&models.User{}).
		Where("id = ? AND tenant_id = ? AND is_active = ?", userID, tenantID, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apperr.Validation(fmt.Sprintf("assignee %d does not exist", userID))
	}
	return nil
}

func (s *TaskService) validateParent(db *gorm.DB, tenantID, projectID, parentID, selfID uint) error {
	if parentID == selfID && selfID != 0 {
		return apperr.Validation("task cannot be its own parent")
	}
	var count int64
	err := db.Model(&models.Task{}).
		Where("id = ? AND tenant_id = ? AND project_id = ?", parentID, tenantID, projectID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apperr.Validation(fmt.Sprintf("parent task %d does not exist in this project", parentID))
	}
	return nil
}

func (s *TaskService) loadLabels(db *gorm.DB, tenantID uint, labelIDs []uint) ([]models.Label, error) {
	if len(labelIDs) == 0 {
		return []models.Label{}, nil
	}
	var labels []models.Label
	if err := db.Where("id IN ? AND tenant_id = ?", labelIDs, tenantID).Find(&labels).Error; err != nil {
		return nil, err
	}
	if len(labels) != len(labelIDs) {
		return nil, apperr.Validation("one or more labels do not exist")
	}
	return labels, nil
}

func (s *TaskService) taskFieldMap(db *gorm.DB, taskID uint) (map[string]string, error) {
	var fields []models.TaskField
	if err := db.Where("task_id = ?", taskID).Find(&fields).Error; err != nil {
		return nil, err
	}
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m, nil
}

func (s *TaskService) publish(event *TaskEvent) {
	if s.events == nil || event == nil {
		return
	}
	if err := s.events.Enqueue(event); err != nil {
		l := logger.With("tasks")
		l.Warn().Err(err).
			Uint("task_id", event.TaskID).
			Str("type", event.Type).
			Msg("failed to enqueue task event")
	}
}

func labelNames(labels []models.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStringMaps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// marshalDiff serializes a diff for storage; shared with the history layer.
func marshalDiff(diff map[string]models.FieldChange) (string, error) {
	data, err := json.Marshal(diff)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
