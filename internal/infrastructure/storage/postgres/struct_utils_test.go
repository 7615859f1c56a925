package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

type auditedRow struct {
	CreatedAt time.Time  `db:"created_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

type sampleRow struct {
	auditedRow
	ID       id.ID          `db:"id"`
	Quantity types.Quantity `db:"quantity"`
	Supplier string         `db:"supplier"`
	Scratch  string         `db:"-"`
	Untagged int
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[sampleRow]()

	assert.ElementsMatch(t, []string{"created_at", "deleted_at", "id", "quantity", "supplier"}, cols)
	assert.NotContains(t, cols, "-")
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	row := sampleRow{
		auditedRow: auditedRow{CreatedAt: now, DeletedAt: &now},
		ID:         id.New(),
		Quantity:   types.NewQuantityFromInt(4),
		Supplier:   "acme",
		Scratch:    "ignored",
		Untagged:   7,
	}

	m := StructToMap(row)

	assert.Len(t, m, 5)
	assert.Equal(t, row.ID, m["id"])
	assert.Equal(t, types.Quantity(4000), m["quantity"])
	assert.Equal(t, "acme", m["supplier"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, &now, m["deleted_at"])

	// pointers are dereferenced
	assert.Equal(t, m, StructToMap(&row))
	assert.Nil(t, StructToMap(42))
}
