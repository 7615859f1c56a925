package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"sompos/internal/core/id"
	"sompos/internal/domain/settlement"
)

// CompressionAlgo names how journal details are stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024

// JournalRecord is a stored journal line.
type JournalRecord struct {
	ID         id.ID           `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   id.ID           `db:"entity_id" json:"entity_id"`
	Action     string          `db:"action" json:"action"`
	Actor      string          `db:"actor" json:"actor"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`

	compressed []byte
	algo       CompressionAlgo
}

var _ settlement.Journal = (*Journal)(nil)

// Journal is the settlement audit trail. Large detail payloads (full
// settlement results of big baskets) are zstd-compressed.
type Journal struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewJournal creates a journal writer.
func NewJournal(txManager *TxManager) (*Journal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Journal{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// Record writes an entry in the caller's transaction.
func (j *Journal) Record(ctx context.Context, e settlement.JournalEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal journal details: %w", err)
	}

	var compressed []byte
	algo := CompressionNone
	if len(details) > j.compressThreshold {
		compressed = j.encoder.EncodeAll(details, nil)
		details = nil
		algo = CompressionZstd
	}

	_, err = j.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO settlement_journal (
			id, entity_type, entity_id, action, actor,
			details, details_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id.New(), e.EntityType, e.EntityID, e.Action, e.Actor,
		details, compressed, algo, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// History returns the newest entries for an entity.
func (j *Journal) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]JournalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, entity_type, entity_id, action, actor,
		       details, details_compressed, compression_algo, created_at
		FROM settlement_journal
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalRecord
	for rows.Next() {
		var r JournalRecord
		if err := rows.Scan(
			&r.ID, &r.EntityType, &r.EntityID, &r.Action, &r.Actor,
			&r.Details, &r.compressed, &r.algo, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if r.algo == CompressionZstd && len(r.compressed) > 0 {
			raw, err := j.decoder.DecodeAll(r.compressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress journal details: %w", err)
			}
			r.Details = raw
		}
		r.compressed = nil
		out = append(out, r)
	}
	return out, rows.Err()
}
