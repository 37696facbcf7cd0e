// Package notify publishes run snapshots to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/aluiziolira/kaspi-offer-tracker/models"
)

// Snapshot is the event emitted after every run, successful or not.
type Snapshot struct {
	RunID       string    `json:"run_id"`
	ProductURL  string    `json:"product_url"`
	State       string    `json:"state"`
	ProductID   int64     `json:"product_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	MinPrice    *int64    `json:"min_price,omitempty"`
	MaxPrice    *int64    `json:"max_price,omitempty"`
	OffersCount int       `json:"offers_count"`
	Skipped     []string  `json:"skipped,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// NewSnapshot summarises a run result.
func NewSnapshot(result *models.RunResult) Snapshot {
	snap := Snapshot{
		RunID:       result.RunID,
		ProductURL:  result.ProductURL,
		State:       result.State,
		OffersCount: len(result.Offers),
		Skipped:     result.Skipped,
		StartedAt:   result.StartTime,
		FinishedAt:  result.EndTime,
	}
	if p := result.Product; p != nil {
		snap.ProductID = p.ID
		snap.Name = p.Name
		snap.MinPrice = p.MinPrice
		snap.MaxPrice = p.MaxPrice
	}
	return snap
}

// KafkaPublisher sends snapshots through a sarama SyncProducer. Messages are
// keyed by product id so one product stays on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaProducer creates a SyncProducer that waits for all replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	return sarama.NewSyncProducer(brokers, config)
}

// NewKafkaPublisher wraps producer. A nil logger falls back to slog.Default().
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Publish sends the snapshot for result.
func (p *KafkaPublisher) Publish(ctx context.Context, result *models.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := NewSnapshot(result)
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := result.RunID
	if snap.ProductID != 0 {
		key = strconv.FormatInt(snap.ProductID, 10)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send snapshot to kafka: %w", err)
	}

	p.logger.Debug("snapshot published",
		slog.String("topic", p.topic),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
	)
	return nil
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
