// Package jobs runs stock reconciliation out of band on asynq.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"sompos/internal/core/id"
)

const (
	// QueueDefault holds cron work.
	QueueDefault = "default"
	// QueueReconcile holds per-settlement recomputes.
	QueueReconcile = "reconcile"

	// TaskReconcileProducts recomputes the aggregates of a few products of one store.
	TaskReconcileProducts = "stock:reconcile"
	// TaskReconcileAll recomputes every aggregate of every store.
	TaskReconcileAll = "stock:reconcile_all"
)

// ReconcilePayload is the body of TaskReconcileProducts.
type ReconcilePayload struct {
	StoreID    id.ID   `json:"store_id"`
	ProductIDs []id.ID `json:"product_ids"`
}

// NewReconcileTask builds a TaskReconcileProducts task. Product ids are
// sorted so equal requests produce equal payloads for uniqueness.
func NewReconcileTask(storeID id.ID, productIDs []id.ID) (*asynq.Task, error) {
	products := id.SortUnique(append([]id.ID(nil), productIDs...))

	data, err := json.Marshal(ReconcilePayload{StoreID: storeID, ProductIDs: products})
	if err != nil {
		return nil, fmt.Errorf("marshal reconcile payload: %w", err)
	}
	return asynq.NewTask(TaskReconcileProducts, data), nil
}

// NewReconcileAllTask builds the cron task.
func NewReconcileAllTask() *asynq.Task {
	return asynq.NewTask(TaskReconcileAll, nil)
}
