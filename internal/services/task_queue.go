package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rebolloluis/family-tree/internal/config"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

const (
	TaskTypePhotoCleanup = "photo:cleanup"
)

// PhotoCleanupTask removes the stored photos of deleted members.
type PhotoCleanupTask struct {
	FamilyID  string   `json:"family_id"`
	MemberIDs []string `json:"member_ids"`
	URLs      []string `json:"urls"`
}

// TaskProcessor handles one cleanup task.
type TaskProcessor func(context.Context, *PhotoCleanupTask) error

// TaskQueue defines the interface for background cleanup processing
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(task *PhotoCleanupTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a Redis-based queue after checking the connection.
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *PhotoCleanupTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(asynq.NewTask(TaskTypePhotoCleanup, payload),
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Int("photos", len(task.URLs)).Msg("cleanup task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs tasks in a goroutine of this process (no Redis)
type SyncQueue struct {
	processor TaskProcessor
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.processor = processor
}

// Enqueue starts the task without blocking the caller.
func (q *SyncQueue) Enqueue(task *PhotoCleanupTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] no processor set, cleanup of %d photos dropped", len(task.URLs))
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.processor(context.Background(), task); err != nil {
			logger.Warnf("[SyncQueue] cleanup failed for family %s: %v", task.FamilyID, err)
		}
	}()
	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for running tasks.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}

// NewPhotoCleanupProcessor deletes the URLs of a task that were stored under
// the task's family, continuing past individual failures and returning the
// last one. Anything else, avatars included, is left alone.
func NewPhotoCleanupProcessor(uploads *UploadService) TaskProcessor {
	return func(ctx context.Context, task *PhotoCleanupTask) error {
		var lastErr error
		for _, url := range task.URLs {
			if !uploads.Owns(task.FamilyID, url) {
				photoCleanups.WithLabelValues("skipped").Inc()
				continue
			}
			if err := uploads.Delete(ctx, url); err != nil {
				photoCleanups.WithLabelValues("error").Inc()
				lastErr = err
				continue
			}
			photoCleanups.WithLabelValues("ok").Inc()
		}
		return lastErr
	}
}
