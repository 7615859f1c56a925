// Package id provides identifiers for ledger rows: batches, movements,
// registers, transactions and line items.
package id

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
)

// ID is a UUID. Rows created by the ledger get UUIDv7, so ids of one store
// sort roughly by creation time; ids supplied by clients may be any version.
type ID = uuid.UUID

// New generates a UUIDv7.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse converts a string to an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts a string to an ID and panics on error. Tests only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether id is the zero ID.
func IsNil(id ID) bool {
	return id == uuid.Nil
}

// Compare orders ids bytewise, the way PostgreSQL orders the uuid type.
// FIFO tie-breaks, cursors and lock ordering all depend on this agreeing
// between the memory and postgres backends.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b.
func Less(a, b ID) bool {
	return Compare(a, b) < 0
}

// SortUnique sorts ids in place and drops duplicates.
func SortUnique(ids []ID) []ID {
	slices.SortFunc(ids, Compare)
	return slices.Compact(ids)
}
