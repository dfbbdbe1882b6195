package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaPayload is the JSON structure published to Kafka. Field names are part
// of the wire contract with downstream compliance consumers.
type kafkaPayload struct {
	ID        string `json:"ID"`
	Timestamp string `json:"Timestamp"`
	Action    string `json:"Action"`
	SlipID    string `json:"SlipID,omitempty"`
	BookingID string `json:"BookingID,omitempty"`
	Subject   string `json:"Subject,omitempty"`
	Origin    string `json:"Origin,omitempty"`
	Decision  string `json:"Decision,omitempty"`
	Reason    string `json:"Reason,omitempty"`
}

// KafkaPublisher mirrors audit events onto a Kafka topic for downstream
// compliance consumers. It wraps an inner Store: the local append is the
// source of truth and must succeed; the produce is asynchronous and a broker
// outage never fails the calling operation.
type KafkaPublisher struct {
	inner  Store
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to the given brokers. Returns an error when the
// client cannot be constructed; broker reachability is checked lazily on
// first produce.
func NewKafkaPublisher(inner Store, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{inner: inner, client: client, topic: topic, logger: logger}, nil
}

func (p *KafkaPublisher) Append(ctx context.Context, event Event) error {
	if err := p.inner.Append(ctx, event); err != nil {
		return err
	}

	payload, err := json.Marshal(kafkaPayload{
		ID:        uuid.NewString(),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    event.Action,
		SlipID:    event.SlipID,
		BookingID: event.BookingID,
		Subject:   event.Subject,
		Origin:    event.Origin,
		Decision:  event.Decision,
		Reason:    event.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SlipID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Warn("audit event produce failed",
				"action", event.Action,
				"slip_id", event.SlipID,
				"error", err,
			)
		}
	})
	return nil
}

func (p *KafkaPublisher) ListBySlip(ctx context.Context, slipID string) ([]Event, error) {
	return p.inner.ListBySlip(ctx, slipID)
}

// Close flushes pending produces and releases the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return err
	}
	p.client.Close()
	return nil
}
