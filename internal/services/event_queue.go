package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/tasktrail/tasktrail/internal/config"
	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/pkg/logger"
)

const (
	TaskTypeTaskEvent = "task:event"

	TaskEventCreated = "task.created"
	TaskEventUpdated = "task.updated"
	TaskEventDeleted = "task.deleted"
)

// TaskEvent is the fanout payload published after a task write commits.
// Consumers send assignee notifications and project webhooks from it.
type TaskEvent struct {
	Type       string                        `json:"type"`
	TaskID     uint                          `json:"task_id"`
	ProjectID  uint                          `json:"project_id"`
	TenantID   uint                          `json:"tenant_id"`
	ActorID    uint                          `json:"actor_id"`
	Title      string                        `json:"title"`
	Changes    map[string]models.FieldChange `json:"changes,omitempty"`
	OccurredAt time.Time                     `json:"occurred_at"`
}

// EventQueue decouples task writes from notification delivery.
type EventQueue interface {
	// Enqueue adds an event to the queue
	Enqueue(event *TaskEvent) error
	// IsAsync returns true if events are processed asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

var (
	globalEventQueue EventQueue
	eventQueueOnce   sync.Once
)

// InitEventQueue initializes the global event queue based on config
func InitEventQueue(cfg *config.Config) EventQueue {
	eventQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Infof("[EventQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalEventQueue = NewSyncQueue()
			} else {
				logger.Infof("[EventQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalEventQueue = queue
			}
		} else {
			logger.Infof("[EventQueue] Sync queue initialized (Redis disabled)")
			globalEventQueue = NewSyncQueue()
		}
	})
	return globalEventQueue
}

// GetEventQueue returns the global event queue instance
func GetEventQueue() EventQueue {
	return globalEventQueue
}

// AsyncQueue implements EventQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before committing to async mode.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	_, err := inspector.Queues()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// Enqueue adds a task event to the async queue
func (q *AsyncQueue) Enqueue(event *TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeTaskEvent, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Event enqueued: id=%s, type=%s", info.ID, event.Type)
	return nil
}

// IsAsync returns true for async queue
func (q *AsyncQueue) IsAsync() bool {
	return true
}

// Close closes the async queue client
func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements EventQueue with in-process delivery (no Redis)
type SyncQueue struct {
	processor func(context.Context, *TaskEvent) error
}

// NewSyncQueue creates a new synchronous queue
func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function to process events in-process
func (q *SyncQueue) SetProcessor(processor func(context.Context, *TaskEvent) error) {
	q.processor = processor
}

// Enqueue hands the event to the processor in a goroutine so the request
// that produced it is never blocked on notification delivery.
func (q *SyncQueue) Enqueue(event *TaskEvent) error {
	if q.processor == nil {
		logger.Infof("[SyncQueue] Warning: no processor set, event will be dropped")
		return nil
	}

	go func() {
		ctx := context.Background()
		if err := q.processor(ctx, event); err != nil {
			logger.Infof("[SyncQueue] Event processing failed: %v", err)
		}
	}()

	return nil
}

// IsAsync returns false for sync queue
func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close is a no-op for sync queue
func (q *SyncQueue) Close() error {
	return nil
}
