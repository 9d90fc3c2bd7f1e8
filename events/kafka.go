package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"anarchy.ttfm/sbtcpay/chain"
	"github.com/segmentio/kafka-go"
)

// Writer is the part of kafka.Writer the sink uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) (err error)
	Close() (err error)
}

// Kafka publishes every event as a message keyed by the emitting contract, so events of one
// contract keep their order within a partition.
type Kafka struct {
	writer       Writer
	topic        string
	topicByEvent map[string]string
}

var _ chain.Sink = (*Kafka)(nil)

type KafkaConfig struct {
	// Bootstrap brokers
	Brokers []string
	// Topic for events without a dedicated one
	Topic string
	// Optional per event name topic overrides
	TopicByEvent map[string]string
	// Overrides the writer built from Brokers
	Writer Writer
}

func NewKafka(config KafkaConfig) (k *Kafka, err error) {
	if config.Topic == "" {
		return nil, errors.New("kafka sink requires a default topic")
	}

	writer := config.Writer
	if writer == nil {
		if len(config.Brokers) == 0 {
			return nil, errors.New("kafka sink requires at least one broker")
		}
		writer = &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		}
	}

	k = &Kafka{
		writer:       writer,
		topic:        config.Topic,
		topicByEvent: config.TopicByEvent,
	}
	return k, nil
}

func (k *Kafka) Publish(ctx context.Context, events []chain.Event) (err error) {
	now := time.Now().UTC()

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.Id, err)
		}

		topic := k.topic
		if mapped, ok := k.topicByEvent[event.Name]; ok && mapped != "" {
			topic = mapped
		}

		messages = append(messages, kafka.Message{
			Topic: topic,
			Key:   []byte(event.Contract),
			Value: value,
			Time:  now,
		})
	}

	err = k.writer.WriteMessages(ctx, messages...)
	if err != nil {
		return fmt.Errorf("failed to write messages: %w", err)
	}
	return nil
}

func (k *Kafka) Close() (err error) {
	return k.writer.Close()
}
