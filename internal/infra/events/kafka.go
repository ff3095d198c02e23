package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
)

var _ adapter.EventSubscriber = (*KafkaSubscriber)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubscriber forwards events to one topic, keyed by credential id so
// events of a credential keep their order within a partition.
type KafkaSubscriber struct {
	writer messageWriter
	topic  string
}

func NewKafkaSubscriber(brokers []string, topic string) (*KafkaSubscriber, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka subscriber requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka subscriber requires a topic")
	}
	return &KafkaSubscriber{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (k *KafkaSubscriber) Name() string { return "kafka" }

func (k *KafkaSubscriber) Handle(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(ev.CredentialID),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	})
}

func (k *KafkaSubscriber) Close() error {
	return k.writer.Close()
}
