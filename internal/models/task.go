package models

import (
	"time"

	"gorm.io/gorm"
)

// Task statuses
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusInReview   = "in_review"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"
)

// Task priorities
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone, TaskStatusCancelled:
		return true
	}
	return false
}

func ValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// Task is the central mutable entity. Version starts at 1 and every accepted
// mutation increments it by exactly 1; updates are accepted only when the
// caller's expected version matches the stored one (optimistic concurrency).
type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TenantID    uint           `gorm:"index;not null" json:"tenant_id"`
	ProjectID   uint           `gorm:"index;not null" json:"project_id"`
	Project     *Project       `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Title       string         `gorm:"size:500;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"size:50;default:todo;index" json:"status"`
	Priority    string         `gorm:"size:50;default:medium" json:"priority"`
	AssigneeID  *uint          `gorm:"index" json:"assignee_id"`
	Assignee    *User          `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	ParentID    *uint          `gorm:"index" json:"parent_id"`
	DueDate     *time.Time     `json:"due_date"`
	Version     int            `gorm:"not null;default:1" json:"version"`
	Labels      []Label        `gorm:"many2many:task_labels;" json:"labels,omitempty"`
	CreatedBy   uint           `json:"created_by"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Task) TableName() string { return "tasks" }

// Label is a tenant-scoped tag attachable to tasks.
type Label struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TenantID  uint           `gorm:"uniqueIndex:idx_tenant_label;not null" json:"tenant_id"`
	Name      string         `gorm:"uniqueIndex:idx_tenant_label;size:100;not null" json:"name"`
	Color     string         `gorm:"size:20" json:"color"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Label) TableName() string { return "labels" }

// TaskField is one custom field value on a task. The whole set is replaced as
// part of the task mutation unit, never piecemeal.
type TaskField struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"uniqueIndex:idx_task_field;not null" json:"task_id"`
	Key       string    `gorm:"uniqueIndex:idx_task_field;size:100;not null" json:"key"`
	Value     string    `gorm:"size:1000" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TaskField) TableName() string { return "task_fields" }
