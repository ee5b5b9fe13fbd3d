// Package kafka publishes payment status changes to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/paybridge/internal/services"
)

const (
	EventTypeStatusChanged = "payment.status.changed"
	eventVersion           = 1
)

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StatusPublisher implements services.EventPublisher on top of a kafka.Writer.
type StatusPublisher struct {
	logger *zap.Logger
	writer messageWriter
	topic  string
}

// NewStatusPublisher creates a publisher writing to topic on brokers.
func NewStatusPublisher(logger *zap.Logger, brokers []string, topic string) *StatusPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newStatusPublisher(logger, writer, topic)
}

func newStatusPublisher(logger *zap.Logger, writer messageWriter, topic string) *StatusPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusPublisher{
		logger: logger.With(zap.String("component", "kafka")),
		writer: writer,
		topic:  topic,
	}
}

// Close flushes and closes the writer.
func (p *StatusPublisher) Close() error {
	return p.writer.Close()
}

// statusChangedPayload is the JSON body of a status change message.
type statusChangedPayload struct {
	EventID              string `json:"event_id"`
	EventType            string `json:"event_type"`
	EventVersion         int    `json:"event_version"`
	OccurredAt           string `json:"occurred_at"`
	TransactionID        string `json:"transaction_id"`
	Gateway              string `json:"gateway"`
	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
	UserID               string `json:"user_id,omitempty"`
	PreviousStatus       string `json:"previous_status"`
	Status               string `json:"status"`
	Amount               string `json:"amount"`
	Currency             string `json:"currency"`
	Source               string `json:"source"`
}

func buildMessage(event services.StatusChangedEvent) (kafka.Message, error) {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	value, err := json.Marshal(statusChangedPayload{
		EventID:              uuid.New().String(),
		EventType:            EventTypeStatusChanged,
		EventVersion:         eventVersion,
		OccurredAt:           occurred.UTC().Format(time.RFC3339),
		TransactionID:        event.TransactionID,
		Gateway:              event.Gateway,
		GatewayTransactionID: event.GatewayTransactionID,
		UserID:               event.UserID,
		PreviousStatus:       string(event.PreviousStatus),
		Status:               string(event.Status),
		Amount:               event.Amount.StringFixed(2),
		Currency:             event.Currency,
		Source:               string(event.Source),
	})
	if err != nil {
		return kafka.Message{}, err
	}
	// Keyed by transaction so one payment's changes stay ordered on a partition.
	return kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeStatusChanged)},
		},
	}, nil
}

// PublishStatusChanged writes one status change message.
func (p *StatusPublisher) PublishStatusChanged(ctx context.Context, event services.StatusChangedEvent) error {
	msg, err := buildMessage(event)
	if err != nil {
		p.logger.Error("failed to marshal status changed event",
			zap.Error(err),
			zap.String("transaction_id", event.TransactionID),
		)
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish status changed event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("transaction_id", event.TransactionID),
		)
		return err
	}

	p.logger.Info("status changed event published",
		zap.String("topic", p.topic),
		zap.String("transaction_id", event.TransactionID),
		zap.String("status", string(event.Status)),
	)
	return nil
}
