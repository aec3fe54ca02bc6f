package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tasktrail/tasktrail/internal/models"
)

func TestTaskTypeTaskEvent_Constant(t *testing.T) {
	if TaskTypeTaskEvent != "task:event" {
		t.Errorf("TaskTypeTaskEvent = %q, expected %q", TaskTypeTaskEvent, "task:event")
	}
}

func TestTaskEvent_Structure(t *testing.T) {
	event := TaskEvent{
		Type:      TaskEventUpdated,
		TaskID:    7,
		ProjectID: 3,
		TenantID:  1,
		ActorID:   42,
		Title:     "Ship the release",
		Changes: map[string]models.FieldChange{
			"status": {From: "todo", To: "done"},
		},
		OccurredAt: time.Now(),
	}

	if event.Type != "task.updated" {
		t.Errorf("Type = %q, expected %q", event.Type, "task.updated")
	}
	if event.TaskID != 7 {
		t.Errorf("TaskID = %d, expected 7", event.TaskID)
	}
	if event.ProjectID != 3 {
		t.Errorf("ProjectID = %d, expected 3", event.ProjectID)
	}
	if event.ActorID != 42 {
		t.Errorf("ActorID = %d, expected 42", event.ActorID)
	}
	change, ok := event.Changes["status"]
	if !ok {
		t.Fatal("Changes should contain the status diff")
	}
	if change.From != "todo" || change.To != "done" {
		t.Errorf("status change = %v -> %v, expected todo -> done", change.From, change.To)
	}
}

func TestSyncQueue_New(t *testing.T) {
	queue := NewSyncQueue()
	if queue == nil {
		t.Error("NewSyncQueue should not return nil")
	}
}

func TestSyncQueue_IsAsync(t *testing.T) {
	queue := NewSyncQueue()
	if queue.IsAsync() {
		t.Error("SyncQueue.IsAsync() should return false")
	}
}

func TestSyncQueue_Close(t *testing.T) {
	queue := NewSyncQueue()
	if err := queue.Close(); err != nil {
		t.Errorf("SyncQueue.Close() should return nil, got %v", err)
	}
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	queue := NewSyncQueue()
	event := &TaskEvent{Type: TaskEventCreated, TaskID: 1}

	if err := queue.Enqueue(event); err != nil {
		t.Errorf("Enqueue without processor should not error, got %v", err)
	}
}

func TestSyncQueue_DeliversToProcessor(t *testing.T) {
	queue := NewSyncQueue()

	var mu sync.Mutex
	var received *TaskEvent
	done := make(chan struct{})

	queue.SetProcessor(func(ctx context.Context, event *TaskEvent) error {
		mu.Lock()
		received = event
		mu.Unlock()
		close(done)
		return nil
	})

	if err := queue.Enqueue(&TaskEvent{Type: TaskEventDeleted, TaskID: 9}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.TaskID != 9 || received.Type != TaskEventDeleted {
		t.Errorf("processor received %+v, expected TaskID 9 type %s", received, TaskEventDeleted)
	}
}

func TestAsyncQueue_IsAsync(t *testing.T) {
	queue := &AsyncQueue{}
	if !queue.IsAsync() {
		t.Error("AsyncQueue.IsAsync() should return true")
	}
}
