package movement

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
)

// Cursor is a keyset position in (created_at DESC, id DESC) order.
type Cursor struct {
	CreatedAt time.Time
	ID        id.ID
}

// CursorAt returns the cursor positioned at r.
func CursorAt(r Record) *Cursor {
	return &Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

// Encode returns an opaque token.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d|%s", c.CreatedAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// After reports whether r sorts strictly after the cursor position.
func (c Cursor) After(r Record) bool {
	if !r.CreatedAt.Equal(c.CreatedAt) {
		return r.CreatedAt.Before(c.CreatedAt)
	}
	return id.Less(r.ID, c.ID)
}

// DecodeCursor parses a token produced by Encode. Empty input yields nil.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperror.NewValidation("malformed cursor")
	}
	tsPart, idPart, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, apperror.NewValidation("malformed cursor")
	}
	nanos, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return nil, apperror.NewValidation("malformed cursor")
	}
	cid, err := id.Parse(idPart)
	if err != nil {
		return nil, apperror.NewValidation("malformed cursor")
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: cid}, nil
}
