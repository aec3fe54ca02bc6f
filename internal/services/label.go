package services

import (
	"errors"

	"github.com/tasktrail/tasktrail/internal/apperr"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/models"
	"gorm.io/gorm"
)

type LabelService struct {
	db       *gorm.DB
	resolver *authz.Resolver
}

func NewLabelService(db *gorm.DB, resolver *authz.Resolver) *LabelService {
	return &LabelService{db: db, resolver: resolver}
}

type LabelRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

func (s *LabelService) List(actor authz.Actor) ([]models.Label, error) {
	var labels []models.Label
	if err := s.db.Where("tenant_id = ?", actor.TenantID).
		Order("name ASC").
		Find(&labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

func (s *LabelService) Create(actor authz.Actor, req *LabelRequest) (*models.Label, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermLabelManage) {
		return nil, apperr.PermissionDenied("requires label.manage permission")
	}

	var existing int64
	s.db.Model(&models.Label{}).
		Where("tenant_id = ? AND name = ?", actor.TenantID, req.Name).
		Count(&existing)
	if existing > 0 {
		return nil, apperr.Validation("label already exists: " + req.Name)
	}

	label := models.Label{
		TenantID: actor.TenantID,
		Name:     req.Name,
		Color:    req.Color,
	}
	if err := s.db.Create(&label).Error; err != nil {
		return nil, err
	}
	return &label, nil
}

func (s *LabelService) Update(actor authz.Actor, labelID uint, req *LabelRequest) (*models.Label, error) {
	if !s.resolver.HasTenantPermission(actor, authz.PermLabelManage) {
		return nil, apperr.PermissionDenied("requires label.manage permission")
	}

	label, err := s.tenantLabel(actor, labelID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"name": req.Name}
	if req.Color != "" {
		updates["color"] = req.Color
	}
	if err := s.db.Model(label).Updates(updates).Error; err != nil {
		return nil, err
	}
	return label, nil
}

func (s *LabelService) Delete(actor authz.Actor, labelID uint) error {
	if !s.resolver.HasTenantPermission(actor, authz.PermLabelManage) {
		return apperr.PermissionDenied("requires label.manage permission")
	}

	label, err := s.tenantLabel(actor, labelID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM task_labels WHERE label_id = ?", label.ID).Error; err != nil {
			return err
		}
		return tx.Delete(label).Error
	})
}

func (s *LabelService) tenantLabel(actor authz.Actor, labelID uint) (*models.Label, error) {
	var label models.Label
	err := s.db.Where("id = ? AND tenant_id = ?", labelID, actor.TenantID).First(&label).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("label")
		}
		return nil, err
	}
	return &label, nil
}
