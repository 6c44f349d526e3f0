package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// Worker drains generation tasks from the Redis queue. Generation gets its
// own high-priority queue so ad-hoc jobs are not starved by backfills.
type Worker struct {
	server    *asynq.Server
	processor func(context.Context, *GenerateTask) error
	log       zerolog.Logger
	mu        sync.Mutex
	running   bool
	wg        sync.WaitGroup
}

// NewWorker returns nil when Redis is disabled; the sync queue covers that
// case.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	log := logger.Component("worker")
	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queueGenerate: 3,
				"default":     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task", task.Type()).Msg("task processing error")
			}),
		},
	)

	return &Worker{server: server, log: log}
}

// SetProcessor sets the function that runs generation tasks.
func (w *Worker) SetProcessor(processor func(context.Context, *GenerateTask) error) {
	w.processor = processor
}

// Start begins processing tasks.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeGenerate, w.handleGenerateTask)

	w.running = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.log.Info().Msg("async worker starting")
		if err := w.server.Run(mux); err != nil {
			w.log.Error().Err(err).Msg("async worker stopped")
		}
	}()

	return nil
}

// Running reports whether the worker loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.log.Info().Msg("async worker shutting down")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
}

func (w *Worker) handleGenerateTask(ctx context.Context, t *asynq.Task) error {
	var task GenerateTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.log.Error().Err(err).Msg("malformed generation task payload")
		// Retrying cannot fix a bad payload.
		return fmt.Errorf("unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.log.Info().
		Str("country", task.Country).
		Str("report_date", task.ReportDate).
		Str("requested_by", task.RequestedBy).
		Msg("processing generation task")

	if w.processor == nil {
		w.log.Warn().Msg("worker has no processor set")
		return nil
	}
	return w.processor(ctx, &task)
}

var (
	globalWorker *Worker
	workerOnce   sync.Once
)

// InitWorker initializes the global worker.
func InitWorker(cfg *config.RedisConfig) *Worker {
	workerOnce.Do(func() {
		globalWorker = NewWorker(cfg)
	})
	return globalWorker
}

// GetWorker returns the global worker instance.
func GetWorker() *Worker {
	return globalWorker
}
