package models

import (
	"encoding/json"
	"time"
)

// FieldChange pairs a changed field's old and new value inside a history diff.
type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// TaskHistory is an append-only change record. Exactly one entry is written in
// the same transaction as each accepted task mutation; entries are never
// updated or deleted. The auto-increment ID breaks timestamp ties.
type TaskHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"index;not null" json:"task_id"`
	ActorID   uint      `gorm:"not null" json:"actor_id"`
	Actor     *User     `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Diff      string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (TaskHistory) TableName() string { return "task_histories" }

// Changes decodes the stored diff into field → {from, to} pairs.
func (h *TaskHistory) Changes() (map[string]FieldChange, error) {
	changes := make(map[string]FieldChange)
	if err := json.Unmarshal([]byte(h.Diff), &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// MarshalJSON inlines the decoded diff so API consumers see structured changes.
func (h *TaskHistory) MarshalJSON() ([]byte, error) {
	type alias TaskHistory
	changes, err := h.Changes()
	if err != nil {
		changes = map[string]FieldChange{}
	}
	return json.Marshal(struct {
		*alias
		Changes map[string]FieldChange `json:"changes"`
	}{
		alias:   (*alias)(h),
		Changes: changes,
	})
}
