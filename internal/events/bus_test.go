package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/events"
)

type stubStore struct {
	lastParams db.InsertDomainEventParams
	event      db.DomainEvent
	err        error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error) {
	if s.err != nil {
		return db.DomainEvent{}, s.err
	}
	s.lastParams = arg
	if !s.event.ID.Valid {
		s.event.ID = pgtype.UUID{Bytes: uuid.New(), Valid: true}
	}
	s.event.Topic = arg.Topic
	s.event.AggregateID = arg.AggregateID
	s.event.Payload = arg.Payload
	if !s.event.OccurredAt.Valid {
		s.event.OccurredAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}
	return s.event, nil
}

type captureNotifier struct {
	events []db.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return c.err
}

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, toUUID(aggregate), map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.lastParams.Topic)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.lastParams.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", toUUID(uuid.New()), nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderCreated, pgtype.UUID{}, nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderCreated, toUUID(uuid.New()), "not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicOrderCreated, toUUID(uuid.New()), nil)
	require.Error(t, err)
}

func TestRecordDoesNotNotify(t *testing.T) {
	notifier := &captureNotifier{}
	base := &events.Bus{Notifiers: []events.Notifier{notifier}}
	txStore := &stubStore{}

	ev, err := base.WithStore(txStore).Record(context.Background(), events.TopicOrderCreated, toUUID(uuid.New()), nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(txStore.lastParams.Payload))
	require.Empty(t, notifier.events)

	require.NoError(t, base.Publish(context.Background(), ev))
	require.Len(t, notifier.events, 1)
}

func TestPublishJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("broker down")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing, nil, ok}}

	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, toUUID(uuid.New()), nil)
	require.ErrorContains(t, err, "broker down")
	require.Len(t, ok.events, 1)
}

func TestEmitStoreFailure(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("insert failed")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, toUUID(uuid.New()), nil)
	require.ErrorContains(t, err, "insert failed")
	require.Empty(t, notifier.events)
}

func TestKafkaNotifierMessage(t *testing.T) {
	writer := &captureWriter{}
	notifier := &events.KafkaNotifier{Writer: writer, TopicPrefix: "toko."}
	aggregate := uuid.New()
	ev := db.DomainEvent{
		ID:          toUUID(uuid.New()),
		Topic:       events.TopicOrderCreated,
		AggregateID: toUUID(aggregate),
		Payload:     []byte(`{"number":"ORD-ABCDEFGH"}`),
	}

	require.NoError(t, notifier.Notify(context.Background(), ev))
	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	require.Equal(t, "toko.order.created", msg.Topic)
	require.Equal(t, aggregate.String(), string(msg.Key))
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, events.TopicOrderCreated, string(msg.Headers[0].Value))
	require.Equal(t, "toko-cart", string(msg.Headers[1].Value))

	writer.err = errors.New("leader not available")
	require.ErrorContains(t, notifier.Notify(context.Background(), ev), "leader not available")
}
