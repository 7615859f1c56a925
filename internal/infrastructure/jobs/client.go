package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"sompos/internal/core/id"
	"sompos/internal/domain/settlement"
	"sompos/pkg/logger"
)

const reconcileMaxRetry = 3

var _ settlement.ReconcileScheduler = (*Client)(nil)

// Client submits reconcile tasks.
type Client struct {
	client    *asynq.Client
	uniqueTTL time.Duration
}

// NewClient constructs an asynq client. Identical reconcile requests within
// uniqueTTL collapse into one task.
func NewClient(redisOpts asynq.RedisConnOpt, uniqueTTL time.Duration) *Client {
	return &Client{client: asynq.NewClient(redisOpts), uniqueTTL: uniqueTTL}
}

// ScheduleReconcile enqueues a recompute of the touched products.
func (c *Client) ScheduleReconcile(ctx context.Context, storeID id.ID, productIDs []id.ID) error {
	if len(productIDs) == 0 {
		return nil
	}
	task, err := NewReconcileTask(storeID, productIDs)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(QueueReconcile), asynq.MaxRetry(reconcileMaxRetry)}
	if c.uniqueTTL > 0 {
		opts = append(opts, asynq.Unique(c.uniqueTTL))
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		logger.Debug(ctx, "reconcile already queued", "store_id", storeID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue reconcile: %w", err)
	}
	logger.Debug(ctx, "reconcile queued", "task_id", info.ID, "store_id", storeID, "products", len(productIDs))
	return nil
}

// EnqueueReconcileAll queues a full reconcile right away.
func (c *Client) EnqueueReconcileAll(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, NewReconcileAllTask(), asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
