package kafka

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used by Sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink publishes lifecycle events to a Kafka topic, keyed by account ID so
// events for one account stay ordered within a partition.
type Sink struct {
	producer Producer
	topic    string
}

var _ registration.EventSink = (*Sink)(nil)

// Message is the JSON payload written for each event.
type Message struct {
	Type       string         `json:"type"`
	AccountID  string         `json:"account_id"`
	Username   string         `json:"username,omitempty"`
	Email      string         `json:"email,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	ActorType  string         `json:"actor_type,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewSink(producer Producer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

// NewClient builds a franz-go client for brokers producing to topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create kafka client")
	}
	return client, nil
}

// Record implements registration.EventSink.
func (s *Sink) Record(ctx context.Context, event registration.LifecycleEvent) error {
	msg := Message{
		Type:       string(event.Type),
		AccountID:  event.AccountID.String(),
		ActorID:    event.Actor.ID,
		ActorType:  event.Actor.Type,
		Decision:   string(event.Decision),
		Metadata:   event.Metadata,
		OccurredAt: event.OccurredAt,
	}
	if event.Account != nil {
		msg.Username = event.Account.Username
		msg.Email = event.Account.Email
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode lifecycle event")
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(msg.AccountID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(msg.Type)},
		},
	}

	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish lifecycle event").
			WithMetadata(map[string]any{"topic": s.topic, "event": msg.Type})
	}
	return nil
}
