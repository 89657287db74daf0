// Package eventstream publishes the canonical hand event log to Kafka so
// external replay and diagnostic tooling can consume it without touching
// Postgres directly, adapted from the teacher's fraud alert Kafka producer.
package eventstream

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"holdem-core/internal/engine"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxRetries   int
	RetryBackoff time.Duration
	RequiredAcks sarama.RequiredAcks
}

// DefaultTopic is the topic every persisted event is published to.
const DefaultTopic = "holdem.events"

// EventProducer publishes persisted hand events to Kafka.
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	mu       sync.RWMutex
	closed   bool
	sent     int64
	failed   int64
}

// EventMessage is the wire shape of one published event.
type EventMessage struct {
	TableID        string        `json:"table_id"`
	HandNumber     int           `json:"hand_number"`
	SequenceNumber int           `json:"sequence_number"`
	Kind           string        `json:"kind"`
	ActorSeatID    string        `json:"actor_seat_id,omitempty"`
	Amount         int           `json:"amount,omitempty"`
	Round          string        `json:"round,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	Event          engine.Event  `json:"event"`
}

// NewEventProducer creates a new Kafka event producer.
func NewEventProducer(cfg ProducerConfig) (*EventProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Retry.Max = cfg.MaxRetries
	saramaConfig.Producer.Retry.Backoff = cfg.RetryBackoff
	saramaConfig.Producer.RequiredAcks = cfg.RequiredAcks

	if cfg.RequiredAcks == sarama.WaitForAll {
		saramaConfig.Producer.Idempotent = true
		saramaConfig.Net.MaxOpenRequests = 1
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &EventProducer{producer: producer, topic: topic}, nil
}

// PublishEvent sends one hand event to Kafka, keyed by table so per-table
// ordering within a partition matches the serializer's revision order.
func (p *EventProducer) PublishEvent(tableID string, handNumber int, e engine.Event) error {
	msg := EventMessage{
		TableID:        tableID,
		HandNumber:     handNumber,
		SequenceNumber: e.SequenceNumber,
		Kind:           string(e.Kind),
		ActorSeatID:    e.ActorSeatID,
		Amount:         e.Amount,
		Round:          string(e.RoundAtApply),
		Timestamp:      e.Timestamp,
		Event:          e,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(tableID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(e.Kind)},
			{Key: []byte("table_id"), Value: []byte(tableID)},
		},
		Timestamp: time.Now(),
	}

	_, _, err = p.producer.SendMessage(kafkaMsg)
	p.mu.Lock()
	if err != nil {
		p.failed++
	} else {
		p.sent++
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish event to kafka: %w", err)
	}
	return nil
}

// PublishBatch publishes every event produced by one serializer apply in
// order, stopping at the first failure so the caller can surface exactly
// which event was not published.
func (p *EventProducer) PublishBatch(tableID string, handNumber int, events []engine.Event) error {
	for i, e := range events {
		if err := p.PublishEvent(tableID, handNumber, e); err != nil {
			return fmt.Errorf("failed to publish event %d: %w", i, err)
		}
	}
	return nil
}

// Stats returns the number of events sent and failed so far.
func (p *EventProducer) Stats() (sent, failed int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sent, p.failed
}

// Close shuts down the producer.
func (p *EventProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}

// EnsureTopic creates the events topic if it doesn't already exist.
func EnsureTopic(brokers []string, topic string, partitions int32, replicationFactor int16) error {
	config := sarama.NewConfig()
	config.Version = sarama.V2_0_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create cluster admin: %w", err)
	}
	defer admin.Close()

	err = admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	}, false)
	if err != nil {
		if topicErr, ok := err.(*sarama.TopicError); ok && topicErr.Err == sarama.ErrTopicAlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}
