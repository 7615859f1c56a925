// Package events delivers outbox messages to the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"sompos/internal/infrastructure/storage/postgres"
	"sompos/pkg/logger"
)

// Writer is the part of kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON value written to the topic.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data"`
}

// KafkaConfig configures the writer.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
}

// KafkaPublisher implements postgres.OutboxHandler on top of kafka-go.
type KafkaPublisher struct {
	writer  Writer
	observe func(eventType string, err error)
}

var _ postgres.OutboxHandler = (*KafkaPublisher)(nil)

// NewKafkaWriter builds a synchronous writer. Messages of one aggregate share
// a key, so the hash balancer keeps them on one partition in order.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = kafka.RequireAll
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: cfg.RequiredAcks,
		Async:        false,
	}
}

// NewKafkaPublisher wraps w. observe may be nil.
func NewKafkaPublisher(w Writer, observe func(eventType string, err error)) *KafkaPublisher {
	if observe == nil {
		observe = func(string, error) {}
	}
	return &KafkaPublisher{writer: w, observe: observe}
}

// Handle publishes one outbox message.
func (p *KafkaPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	value, err := json.Marshal(Envelope{
		ID:            msg.ID.String(),
		Type:          msg.EventType,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID.String(),
		OccurredAt:    msg.CreatedAt,
		Data:          json.RawMessage(msg.Payload),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.AggregateID.String()),
		Value: value,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(msg.EventType)},
			{Key: "aggregate-type", Value: []byte(msg.AggregateType)},
			{Key: "message-id", Value: []byte(msg.ID.String())},
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
	p.observe(msg.EventType, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogHandler acknowledges messages by logging them. Used when no broker is configured.
type LogHandler struct{}

var _ postgres.OutboxHandler = LogHandler{}

func (LogHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	logger.Info(ctx, "outbox event",
		"message_id", msg.ID,
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
	)
	return nil
}
