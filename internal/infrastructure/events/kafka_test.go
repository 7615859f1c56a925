package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/id"
	"sompos/internal/infrastructure/storage/postgres"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func outboxMessage() *postgres.OutboxMessage {
	return &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: "transaction",
		AggregateID:   id.New(),
		EventType:     "SaleSettled",
		Payload:       []byte(`{"total":"30.00"}`),
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Handle(t *testing.T) {
	w := &fakeWriter{}
	var observed []string
	p := NewKafkaPublisher(w, func(eventType string, err error) {
		observed = append(observed, eventType)
		assert.NoError(t, err)
	})
	msg := outboxMessage()

	require.NoError(t, p.Handle(context.Background(), msg))
	require.Len(t, w.msgs, 1)

	out := w.msgs[0]
	assert.Equal(t, msg.AggregateID.String(), string(out.Key))
	assert.Equal(t, msg.CreatedAt, out.Time)

	headers := map[string]string{}
	for _, h := range out.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "SaleSettled", headers["event-type"])
	assert.Equal(t, msg.ID.String(), headers["message-id"])

	var env Envelope
	require.NoError(t, json.Unmarshal(out.Value, &env))
	assert.Equal(t, "SaleSettled", env.Type)
	assert.Equal(t, "transaction", env.AggregateType)
	assert.JSONEq(t, `{"total":"30.00"}`, string(env.Data))
	assert.Equal(t, []string{"SaleSettled"}, observed)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	var failures int
	p := NewKafkaPublisher(w, func(_ string, err error) {
		if err != nil {
			failures++
		}
	})

	err := p.Handle(context.Background(), outboxMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, 1, failures)
}

func TestNewKafkaWriter_Defaults(t *testing.T) {
	w := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "sompos.settlement"})
	assert.Equal(t, "sompos.settlement", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.False(t, w.Async)
}

func TestLogHandler(t *testing.T) {
	assert.NoError(t, LogHandler{}.Handle(context.Background(), outboxMessage()))
}
