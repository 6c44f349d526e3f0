package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

const (
	TaskTypeGenerate = "questionnaire:generate"

	// Dedicated queue for generation jobs; the worker weights it above
	// "default".
	queueGenerate = "generate"

	// Generation calls out to an LLM provider and can legitimately take
	// minutes for a large report.
	generateTimeout = 10 * time.Minute

	// In-process fallback runs at most this many generations at once.
	syncQueueSlots = 2
)

// GenerateTask is one queued questionnaire-generation job.
type GenerateTask struct {
	Country     string   `json:"country"`
	ReportDate  string   `json:"report_date"`
	FocusAreas  []string `json:"focus_areas,omitempty"`
	RequestedBy string   `json:"requested_by,omitempty"`
}

// TaskQueue accepts generation jobs. The async implementation hands them to
// the worker through Redis; the sync fallback runs them in-process so the
// system stays usable without Redis.
type TaskQueue interface {
	Enqueue(task *GenerateTask) error
	IsAsync() bool
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config.
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		log := logger.Component("queue")
		if !cfg.Redis.Enabled {
			log.Info().Msg("redis disabled, running generation tasks in-process")
			globalTaskQueue = NewSyncQueue()
			return
		}
		queue, err := NewAsyncQueue(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, falling back to in-process generation")
			globalTaskQueue = NewSyncQueue()
			return
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("async task queue ready")
		globalTaskQueue = queue
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance.
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

// AsyncQueue implements TaskQueue using asynq.
type AsyncQueue struct {
	client *asynq.Client
	log    zerolog.Logger
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	// Verify the connection before accepting jobs.
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client, log: logger.Component("queue")}, nil
}

func (q *AsyncQueue) Enqueue(task *GenerateTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(asynq.NewTask(TaskTypeGenerate, payload),
		asynq.Queue(queueGenerate),
		asynq.MaxRetry(3),
		asynq.Timeout(generateTimeout),
	)
	if err != nil {
		return err
	}

	q.log.Info().
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Str("country", task.Country).
		Str("report_date", task.ReportDate).
		Str("requested_by", task.RequestedBy).
		Msg("generation task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue with in-process execution. A small slot
// pool keeps concurrent generations bounded; Enqueue itself never blocks
// the caller.
type SyncQueue struct {
	processor func(context.Context, *GenerateTask) error
	slots     chan struct{}
	log       zerolog.Logger
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{
		slots: make(chan struct{}, syncQueueSlots),
		log:   logger.Component("queue"),
	}
}

// SetProcessor sets the function that runs queued tasks.
func (q *SyncQueue) SetProcessor(processor func(context.Context, *GenerateTask) error) {
	q.processor = processor
}

// Enqueue runs the task in a goroutine so the HTTP response is not blocked.
func (q *SyncQueue) Enqueue(task *GenerateTask) error {
	if q.processor == nil {
		q.log.Warn().Msg("sync queue has no processor, task dropped")
		return nil
	}

	go func() {
		q.slots <- struct{}{}
		defer func() { <-q.slots }()

		if err := q.processor(context.Background(), task); err != nil {
			q.log.Error().Err(err).
				Str("country", task.Country).
				Str("report_date", task.ReportDate).
				Str("requested_by", task.RequestedBy).
				Msg("generation task failed")
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
