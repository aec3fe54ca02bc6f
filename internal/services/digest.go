package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tasktrail/tasktrail/internal/config"
	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/pkg/logger"
	"gorm.io/gorm"
)

// DigestService sends a daily activity summary per project: tasks created,
// completed and overdue in the last 24 hours, mailed to members who opted in
// via a profile email.
type DigestService struct {
	db            *gorm.DB
	email         *EmailService
	cfg           *config.DigestConfig
	cronScheduler *cron.Cron
}

func NewDigestService(db *gorm.DB, cfg *config.DigestConfig) *DigestService {
	return &DigestService{
		db:    db,
		email: NewEmailService(db),
		cfg:   cfg,
	}
}

func (s *DigestService) StartScheduler() {
	if s.cfg == nil || !s.cfg.Enabled {
		l := logger.With("digest")
		l.Info().Msg("daily digest disabled")
		return
	}

	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(s.cfg.Cron, func() {
		s.RunOnce()
	}); err != nil {
		l := logger.With("digest")
		l.Error().Err(err).Str("cron", s.cfg.Cron).
			Msg("invalid digest schedule")
		return
	}
	s.cronScheduler.Start()
	l := logger.With("digest")
	l.Info().Str("cron", s.cfg.Cron).Msg("digest scheduler started")
}

func (s *DigestService) StopScheduler() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

type projectDigest struct {
	Project   models.Project
	Created   int64
	Completed int64
	Overdue   int64
}

// RunOnce builds and sends the digest for every project with notifications
// enabled. Exposed for manual triggering from the admin surface.
func (s *DigestService) RunOnce() {
	var projects []models.Project
	if err := s.db.Where("notify_enabled = ? AND archived = ?", true, false).Find(&projects).Error; err != nil {
		l := logger.With("digest")
		l.Error().Err(err).Msg("failed to load projects")
		return
	}

	since := time.Now().Add(-24 * time.Hour)

	for _, project := range projects {
		digest, err := s.buildDigest(project, since)
		if err != nil {
			l := logger.With("digest")
			l.Error().Err(err).
				Uint("project_id", project.ID).
				Msg("failed to build digest")
			continue
		}
		if digest.Created == 0 && digest.Completed == 0 && digest.Overdue == 0 {
			continue
		}
		if err := s.sendDigest(digest); err != nil {
			l := logger.With("digest")
			l.Warn().Err(err).
				Uint("project_id", project.ID).
				Msg("failed to send digest")
		}
	}
}

func (s *DigestService) buildDigest(project models.Project, since time.Time) (*projectDigest, error) {
	d := &projectDigest{Project: project}

	err := s.db.Model(&models.Task{}).
		Where("project_id = ? AND created_at >= ?", project.ID, since).
		Count(&d.Created).Error
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&models.Task{}).
		Where("project_id = ? AND status = ? AND updated_at >= ?", project.ID, models.TaskStatusDone, since).
		Count(&d.Completed).Error
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&models.Task{}).
		Where("project_id = ? AND due_date < ? AND status NOT IN ?",
			project.ID, time.Now(), []string{models.TaskStatusDone, models.TaskStatusCancelled}).
		Count(&d.Overdue).Error
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (s *DigestService) sendDigest(d *projectDigest) error {
	var recipients []string
	err := s.db.Table("users").
		Joins("JOIN project_members ON project_members.user_id = users.id").
		Where("project_members.project_id = ?", d.Project.ID).
		Where("users.email <> '' AND users.is_active = ?", true).
		Pluck("users.email", &recipients).Error
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	var changes strings.Builder
	fmt.Fprintf(&changes, "created: %d, completed: %d, overdue: %d", d.Created, d.Completed, d.Overdue)

	return s.email.SendTaskNotification(&TaskNotification{
		ProjectName: d.Project.Name,
		TaskTitle:   fmt.Sprintf("Daily digest for %s", d.Project.Name),
		EventType:   "daily.digest",
		ActorName:   "TaskTrail",
		Changes: map[string]models.FieldChange{
			"activity": {From: nil, To: changes.String()},
		},
	}, recipients)
}
