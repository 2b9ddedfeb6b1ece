package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of *kafka.Writer the forwarder needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder is an event handler that copies invoice events to a Kafka
// topic. Messages are keyed by invoice id so one invoice's events stay in
// one partition and keep their order.
type KafkaForwarder struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaWriter builds a writer for the configured brokers and topic
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaForwarder wraps a writer; topic is only used for logging since the
// writer carries its own
func NewKafkaForwarder(writer messageWriter, topic string, log *zap.Logger) *KafkaForwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaForwarder{writer: writer, topic: topic, logger: log}
}

// Handle encodes the event and writes it to the topic
func (f *KafkaForwarder) Handle(ctx context.Context, evt shared.DomainEvent) error {
	value, err := Encode(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.AggregateID().String()),
		Value: value,
		Time:  evt.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType())},
			{Key: "tenant_id", Value: []byte(evt.TenantID().String())},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to forward %s to %s: %w", evt.EventType(), f.topic, err)
	}

	f.logger.Debug("event forwarded",
		zap.String("topic", f.topic),
		zap.String("event_type", evt.EventType()),
		zap.String("event_id", evt.EventID().String()),
	)
	return nil
}

// EventTypes is empty: every event is forwarded
func (f *KafkaForwarder) EventTypes() []string {
	return nil
}

// Close flushes pending batches and closes the writer
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

var _ shared.EventHandler = (*KafkaForwarder)(nil)
