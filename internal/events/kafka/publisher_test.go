package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/services"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
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

func statusEvent() services.StatusChangedEvent {
	return services.StatusChangedEvent{
		TransactionID:  "TXN1",
		Gateway:        models.GatewayUPI,
		UserID:         "u-1",
		PreviousStatus: models.StatusPending,
		Status:         models.StatusSuccess,
		Amount:         decimal.NewFromInt(100),
		Currency:       "INR",
		Source:         services.SourceCallback,
		OccurredAt:     time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestPublishStatusChanged(t *testing.T) {
	w := &fakeWriter{}
	p := newStatusPublisher(nil, w, "payments")

	require.NoError(t, p.PublishStatusChanged(context.Background(), statusEvent()))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "TXN1", string(w.msgs[0].Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	require.Equal(t, EventTypeStatusChanged, body["event_type"])
	require.Equal(t, "pending", body["previous_status"])
	require.Equal(t, "success", body["status"])
	require.Equal(t, "100.00", body["amount"])
	require.Equal(t, "callback", body["source"])
	require.Equal(t, "2026-03-04T05:06:07Z", body["occurred_at"])
	require.NotEmpty(t, body["event_id"])
	require.NotContains(t, body, "gateway_transaction_id")

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishStatusChangedWriteError(t *testing.T) {
	p := newStatusPublisher(nil, &fakeWriter{err: errors.New("broker down")}, "payments")
	require.EqualError(t, p.PublishStatusChanged(context.Background(), statusEvent()), "broker down")
}
