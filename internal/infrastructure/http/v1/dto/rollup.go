package dto

import (
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/rollup"
)

// RollupFilter is the query of GET /stores/:store_id/rollups/:dimension.
type RollupFilter struct {
	DayRange
	OffsetRequest
	Key string `form:"key" binding:"max=200"`
}

// ToQuery builds the rollup query.
func (f RollupFilter) ToQuery(storeID id.ID, dim rollup.Dimension) rollup.Query {
	return rollup.Query{
		Dimension: dim,
		StoreID:   storeID,
		From:      f.From,
		To:        f.To,
		Value:     f.Key,
		Limit:     f.Limit,
		Offset:    f.Offset,
	}
}

// RollupResponse is a bucket with its derived figures.
type RollupResponse struct {
	rollup.Bucket
	AverageUnitPrice   types.Money `json:"average_unit_price"`
	AverageTransaction types.Money `json:"average_transaction"`
	Margin             types.Money `json:"margin"`
}

// FromBucket converts a bucket.
func FromBucket(b rollup.Bucket) RollupResponse {
	return RollupResponse{
		Bucket:             b,
		AverageUnitPrice:   b.AverageUnitPrice(),
		AverageTransaction: b.AverageTransaction(),
		Margin:             b.Margin(),
	}
}
