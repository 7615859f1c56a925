package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	appctx "sompos/internal/core/context"
	"sompos/pkg/logger"
)

// Worker wraps the asynq server and the cron scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisConnOpt
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	log := logger.Default().WithComponent("asynq")

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueReconcile: 3,
			QueueDefault:   1,
		},
		Logger: log,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn(ctx, "task failed", "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Use(taskCorrelation)
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC, Logger: log})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler}, nil
}

// taskCorrelation tags the handler context with the task id so log lines
// from one delivery can be grouped.
func taskCorrelation(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		if taskID, ok := asynq.GetTaskID(ctx); ok {
			ctx = appctx.WithRequestID(ctx, taskID)
		}
		return next.ProcessTask(ctx, t)
	})
}

// ReconcileCron registers the full reconcile on spec.
func ReconcileCron(spec string) CronRegistration {
	return CronRegistration{
		Spec:    spec,
		Task:    NewReconcileAllTask(),
		Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(1)},
	}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	if err := w.server.Start(w.mux); err != nil {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return nil
}
