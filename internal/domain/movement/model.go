// Package movement is the append-only stock movement log.
// Every change to a stock aggregate leaves exactly one record, keyed by a
// unique reference id so that replays are idempotent.
package movement

import (
	"fmt"
	"time"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// OperationType classifies a movement.
type OperationType string

const (
	OperationSale       OperationType = "SALE"
	OperationReturn     OperationType = "RETURN"
	OperationIncoming   OperationType = "INCOMING"
	OperationCorrection OperationType = "CORRECTION"
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	switch t {
	case OperationSale, OperationReturn, OperationIncoming, OperationCorrection:
		return true
	}
	return false
}

// Record is a single stock movement.
type Record struct {
	ID                  id.ID          `json:"id"`
	StoreID             id.ID          `json:"store_id"`
	ProductID           id.ID          `json:"product_id"`
	QuantityBefore      types.Quantity `json:"quantity_before"`
	QuantityAfter       types.Quantity `json:"quantity_after"`
	QuantityDelta       types.Quantity `json:"quantity_change"`
	OperationType       OperationType  `json:"operation_type"`
	ReferenceID         string         `json:"reference_id"`
	Actor               string         `json:"actor,omitempty"`
	BatchID             *id.ID         `json:"batch_id,omitempty"`
	SizeID              *id.ID         `json:"size_id,omitempty"`
	SalePriceAtTime     *types.Money   `json:"sale_price_at_time,omitempty"`
	PurchasePriceAtTime *types.Money   `json:"purchase_price_at_time,omitempty"`
	Notes               string         `json:"notes,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Validate enforces sign rules and before/after arithmetic.
func (r Record) Validate() error {
	if r.ReferenceID == "" {
		return apperror.NewValidation("reference_id is required")
	}
	if id.IsNil(r.StoreID) || id.IsNil(r.ProductID) {
		return apperror.NewValidation("store_id and product_id are required")
	}
	if !r.OperationType.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown operation type %q", r.OperationType))
	}

	switch r.OperationType {
	case OperationSale:
		if !r.QuantityDelta.IsNegative() {
			return apperror.NewValidation("SALE movement must decrease stock")
		}
	case OperationReturn, OperationIncoming:
		if !r.QuantityDelta.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("%s movement must increase stock", r.OperationType))
		}
	case OperationCorrection:
		if r.QuantityDelta.IsZero() {
			return apperror.NewValidation("CORRECTION movement must change stock")
		}
	}

	if r.QuantityBefore+r.QuantityDelta != r.QuantityAfter {
		return apperror.NewValidation("quantity_before + quantity_change must equal quantity_after").
			WithDetail("before", r.QuantityBefore.String()).
			WithDetail("change", r.QuantityDelta.String()).
			WithDetail("after", r.QuantityAfter.String())
	}
	return nil
}

// samePayload compares the fields that identify what a reference stands for.
func (r Record) samePayload(o Record) bool {
	return r.StoreID == o.StoreID &&
		r.ProductID == o.ProductID &&
		r.OperationType == o.OperationType &&
		r.QuantityDelta == o.QuantityDelta
}

// --- Reference formats ---

// SaleReference identifies the SALE movement of a transaction line.
func SaleReference(txID, itemID id.ID) string {
	return fmt.Sprintf("txn_%s_item_%s", txID, itemID)
}

// ReturnReference identifies the RETURN movement of a reversed transaction line.
func ReturnReference(txID, itemID id.ID) string {
	return fmt.Sprintf("refund_%s_item_%s", txID, itemID)
}

// IncomingReference identifies the INCOMING movement of a received batch.
func IncomingReference(batchID id.ID) string {
	return fmt.Sprintf("incoming_%s", batchID)
}

// CorrectionReference identifies an inventory correction.
func CorrectionReference(correctionID id.ID) string {
	return fmt.Sprintf("correction_%s", correctionID)
}
