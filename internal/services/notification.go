package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/pkg/logger"
	"gorm.io/gorm"
)

// NotificationService fans a committed task event out to the assignee's email
// and the project webhook. It runs on the queue consumer side, never inside a
// request or a mutation transaction.
type NotificationService struct {
	db     *gorm.DB
	email  *EmailService
	client *http.Client
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db:    db,
		email: NewEmailService(db),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ProcessTaskEvent is the queue processor. Delivery failures are logged and
// swallowed except for webhook errors, which are returned so the async queue
// can retry.
func (s *NotificationService) ProcessTaskEvent(ctx context.Context, event *TaskEvent) error {
	var project models.Project
	if err := s.db.First(&project, event.ProjectID).Error; err != nil {
		l := logger.With("notify")
		l.Warn().Err(err).
			Uint("project_id", event.ProjectID).
			Msg("project gone, dropping event")
		return nil
	}

	if err := s.notifyAssignee(event, &project); err != nil {
		l := logger.With("notify")
		l.Warn().Err(err).
			Uint("task_id", event.TaskID).
			Msg("assignee email failed")
	}

	if project.NotifyEnabled && project.WebhookURL != "" {
		return s.sendWebhook(ctx, &project, event)
	}
	return nil
}

func (s *NotificationService) notifyAssignee(event *TaskEvent, project *models.Project) error {
	var task models.Task
	if err := s.db.First(&task, event.TaskID).Error; err != nil {
		// Deleted tasks have no assignee left to notify.
		return nil
	}
	if task.AssigneeID == nil || *task.AssigneeID == event.ActorID {
		return nil
	}

	var assignee models.User
	if err := s.db.First(&assignee, *task.AssigneeID).Error; err != nil {
		return err
	}
	if assignee.Email == "" {
		return nil
	}

	var actorName string
	var actor models.User
	if err := s.db.First(&actor, event.ActorID).Error; err == nil {
		actorName = actor.Username
	}

	return s.email.SendTaskNotification(&TaskNotification{
		ProjectName: project.Name,
		TaskTitle:   event.Title,
		EventType:   event.Type,
		ActorName:   actorName,
		Changes:     event.Changes,
	}, []string{assignee.Email})
}

type webhookPayload struct {
	Event      string                        `json:"event"`
	TaskID     uint                          `json:"task_id"`
	ProjectID  uint                          `json:"project_id"`
	Title      string                        `json:"title"`
	ActorID    uint                          `json:"actor_id"`
	Changes    map[string]models.FieldChange `json:"changes,omitempty"`
	OccurredAt time.Time                     `json:"occurred_at"`
}

func (s *NotificationService) sendWebhook(ctx context.Context, project *models.Project, event *TaskEvent) error {
	payload := webhookPayload{
		Event:      event.Type,
		TaskID:     event.TaskID,
		ProjectID:  event.ProjectID,
		Title:      event.Title,
		ActorID:    event.ActorID,
		Changes:    event.Changes,
		OccurredAt: event.OccurredAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, project.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TaskTrail-Event", event.Type)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	l := logger.With("notify")
	l.Info().
		Uint("project_id", project.ID).
		Str("event", event.Type).
		Msg("webhook delivered")
	return nil
}
