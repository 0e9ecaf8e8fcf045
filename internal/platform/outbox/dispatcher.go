package outbox

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

// NewKafkaWriter is the producer used in production.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(event.Type)},
		{Key: "event_id", Value: []byte(event.EventID)},
		{Key: "aggregate_type", Value: []byte(event.AggregateType)},
	}
	headers = tracing.InjectKafkaHeaders(tracing.ContextWithTraceparent(ctx, event.Traceparent), headers)

	msg := kafka.Message{
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	// kafka.Writer rejects a per-message topic when its own Topic is set
	if d.topic != "" {
		msg.Topic = d.topic
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.ErrorContext(ctx, "outbox dispatch failed", "event_id", event.EventID, "type", event.Type, "err", err)
		return err
	}
	d.log.DebugContext(ctx, "outbox dispatched", "event_id", event.EventID, "type", event.Type)
	return nil
}

// LogProducer stands in for Kafka when no brokers are configured.
type LogProducer struct {
	Log *slog.Logger
}

func (p LogProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		var typ string
		for _, h := range m.Headers {
			if h.Key == "event_type" {
				typ = string(h.Value)
			}
		}
		p.Log.InfoContext(ctx, "outbox event", "topic", m.Topic, "key", string(m.Key), "type", typ, "payload", string(m.Value))
	}
	return nil
}
