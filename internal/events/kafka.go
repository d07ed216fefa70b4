package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/obs"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds a synchronous writer that waits for all replicas.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// KafkaNotifier publishes recorded events to the broker. Messages are keyed by
// aggregate id so events of one order stay ordered within a partition.
type KafkaNotifier struct {
	Writer      MessageWriter
	TopicPrefix string
	Source      string
	Log         zerolog.Logger
}

// Notify implements Notifier.
func (k *KafkaNotifier) Notify(ctx context.Context, ev db.DomainEvent) error {
	if k == nil || k.Writer == nil {
		return nil
	}
	topic := k.TopicPrefix + ev.Topic
	source := k.Source
	if source == "" {
		source = "toko-cart"
	}
	key := ""
	if ev.AggregateID.Valid {
		key = uuid.UUID(ev.AggregateID.Bytes).String()
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: ev.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Topic)},
			{Key: "source", Value: []byte(source)},
		},
	}
	if ev.ID.Valid {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "event_id", Value: []byte(uuid.UUID(ev.ID.Bytes).String())})
	}
	if err := k.Writer.WriteMessages(ctx, msg); err != nil {
		obs.CountEventPublished(ev.Topic, "error")
		k.Log.Error().Err(err).Str("topic", topic).Str("aggregate_id", key).Msg("event_publish_failed")
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	obs.CountEventPublished(ev.Topic, "ok")
	k.Log.Debug().Str("topic", topic).Str("aggregate_id", key).Msg("event_published")
	return nil
}

// LogNotifier writes events to the application log. It is used when no broker
// is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, ev db.DomainEvent) error {
	l.Log.Info().
		Str("topic", ev.Topic).
		RawJSON("payload", ev.Payload).
		Msg("domain_event")
	obs.CountEventPublished(ev.Topic, "logged")
	return nil
}
