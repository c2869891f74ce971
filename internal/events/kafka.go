package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const kafkaTopic = "kasira.events"

// KafkaPublisher mirrors every event onto a single Kafka topic keyed by the
// in-process topic, so external consumers partition by branch or owner.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &KafkaPublisher{
		producer: producer,
		logger:   log.WithField("component", "kafka-publisher"),
	}, nil
}

func (p *KafkaPublisher) Publish(_ context.Context, topic string, eventType Type, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	evt := Event{
		Type:      eventType,
		Topic:     topic,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     kafkaTopic,
		Key:       sarama.StringEncoder(topic),
		Value:     sarama.ByteEncoder(value),
		Timestamp: evt.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": topic,
			"type":  eventType,
		}).Error("failed to send event to kafka")
		return fmt.Errorf("send event: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"type":      eventType,
		"partition": partition,
		"offset":    offset,
	}).Debug("event sent to kafka")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// Fanout publishes to every underlying publisher and reports the first error
// after all of them have been tried.
type Fanout struct {
	publishers []Publisher
}

func NewFanout(publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers}
}

func (f *Fanout) Publish(ctx context.Context, topic string, eventType Type, payload any) error {
	var first error
	for _, pub := range f.publishers {
		if err := pub.Publish(ctx, topic, eventType, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
