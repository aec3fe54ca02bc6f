package services

import (
	"errors"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

// CommentService manages task discussion. Comments live outside the versioned
// mutation unit: adding one never bumps the task version or writes history.
type CommentService struct {
	db       *gorm.DB
	resolver *authz.Resolver
}

func NewCommentService(db *gorm.DB, resolver *authz.Resolver) *CommentService {
	return &CommentService{db: db, resolver: resolver}
}

type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// List returns a task's comments oldest-first.
func (s *CommentService) List(actor authz.Actor, taskID uint) ([]models.Comment, error) {
	task, err := s.visibleTask(actor, taskID)
	if err != nil {
		return nil, err
	}
	if !s.resolver.HasTenantPermission(actor, authz.PermTaskRead) {
		return nil, apperr.PermissionDenied("requires task.read permission")
	}
	if d := s.resolver.CheckProjectAccess(actor, task.ProjectID, ""); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}

	var comments []models.Comment
	if err := s.db.Preload("Author").
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// Create adds a comment to a task.
func (s *CommentService) Create(actor authz.Actor, taskID uint, req *CommentRequest) (*models.Comment, error) {
	task, err := s.visibleTask(actor, taskID)
	if err != nil {
		return nil, err
	}
	if !s.resolver.HasTenantPermission(actor, authz.PermCommentCreate) {
		return nil, apperr.PermissionDenied("requires comment.create permission")
	}
	if d := s.resolver.CheckProjectAccess(actor, task.ProjectID, ""); !d.Allowed {
		return nil, apperr.PermissionDenied(d.Reason)
	}

	comment := models.Comment{
		TenantID: actor.TenantID,
		TaskID:   task.ID,
		AuthorID: actor.ID,
		Body:     req.Body,
	}
	if err := s.db.Create(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// Update edits a comment's body. Only the author may edit.
func (s *CommentService) Update(actor authz.Actor, commentID uint, req *CommentRequest) (*models.Comment, error) {
	comment, err := s.visibleComment(actor, commentID)
	if err != nil {
		return nil, err
	}
	if !s.resolver.HasTenantPermission(actor, authz.PermCommentUpdate) {
		return nil, apperr.PermissionDenied("requires comment.update permission")
	}
	if comment.AuthorID != actor.ID {
		return nil, apperr.PermissionDenied("only the author can edit a comment")
	}

	if err := s.db.Model(comment).Update("body", req.Body).Error; err != nil {
		return nil, err
	}
	comment.Body = req.Body
	return comment, nil
}

// Delete removes a comment. The author or a tenant admin may delete.
func (s *CommentService) Delete(actor authz.Actor, commentID uint) error {
	comment, err := s.visibleComment(actor, commentID)
	if err != nil {
		return err
	}
	if !s.resolver.HasTenantPermission(actor, authz.PermCommentDelete) {
		return apperr.PermissionDenied("requires comment.delete permission")
	}
	if comment.AuthorID != actor.ID && !s.resolver.HasTenantPermission(actor, authz.PermAdminAccess) {
		return apperr.PermissionDenied("only the author or an admin can delete a comment")
	}

	return s.db.Delete(comment).Error
}

func (s *CommentService) visibleTask(actor authz.Actor, taskID uint) (*models.Task, error) {
	var task models.Task
	err := s.db.Where("id = ? AND tenant_id = ?", taskID, actor.TenantID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}
	return &task, nil
}

func (s *CommentService) visibleComment(actor authz.Actor, commentID uint) (*models.Comment, error) {
	var comment models.Comment
	err := s.db.Where("id = ? AND tenant_id = ?", commentID, actor.TenantID).First(&comment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("comment")
		}
		return nil, err
	}
	return &comment, nil
}
