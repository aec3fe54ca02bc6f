package services

import (
	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

// recordHistory appends one immutable history entry for an accepted mutation.
// It must run inside the same transaction as the conditional task update so
// the entry commits or rolls back together with the change it records.
func recordHistory(tx *gorm.DB, taskID, actorID uint, diff map[string]models.FieldChange) error {
	if len(diff) == 0 {
		return nil
	}
	payload, err := marshalDiff(diff)
	if err != nil {
		return err
	}
	entry := models.TaskHistory{
		TaskID:  taskID,
		ActorID: actorID,
		Diff:    payload,
	}
	return tx.Create(&entry).Error
}

// HistoryService reads the append-only change log of a task. There are no
// update or delete paths: entries are written once by the mutation engine and
// never touched again.
type HistoryService struct {
	db       *gorm.DB
	resolver *authz.Resolver
}

func NewHistoryService(db *gorm.DB, resolver *authz.Resolver) *HistoryService {
	return &HistoryService{db: db, resolver: resolver}
}

type HistoryListRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

type HistoryListResponse struct {
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Items    []models.TaskHistory `json:"items"`
}

// List returns a task's history, most recent first. Entries created in the
// same instant keep a stable order via the autoincrement id tiebreaker.
func (s *HistoryService) List(actor authz.Actor, taskID uint, req *HistoryListRequest) (*HistoryListResponse, error) {
	var task models.Task
	err := s.db.Where("id = ? AND tenant_id = ?", taskID, actor.TenantID).First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}

	if !s.resolver.HasTenantPermission(actor, authz.PermHistoryRead) {
		return nil, apperr.PermissionDenied("requires task.history.read permission")
	}
	if d := s.resolver.CheckProjectAccess(actor, task.ProjectID, ""); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 50
	}

	query := s.db.Model(&models.TaskHistory{}).Where("task_id = ?", taskID)

	var total int64
	query.Count(&total)

	var entries []models.TaskHistory
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Actor").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(req.PageSize).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	return &HistoryListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    entries,
	}, nil
}
