package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

// messageWriter is the subset of *kafka.Writer used by the publisher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes settlement events keyed by bet id
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// KafkaPublisherConfig holds Kafka publisher configuration
type KafkaPublisherConfig struct {
	Brokers []string
	Topic   string // e.g., "brotherbot.settlements"
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(config KafkaPublisherConfig, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return newKafkaPublisher(writer, config.Topic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

// PublishSettlement writes one settlement event
func (p *KafkaPublisher) PublishSettlement(ctx context.Context, event *models.SettlementEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.BetID, 10)),
		Value: value,
		Time:  event.SettledAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish settlement for bet %d: %w", event.BetID, err)
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Int64("bet_id", event.BetID).
		Str("status", string(event.Status)).
		Msg("published settlement")

	return nil
}

// Close flushes and closes the Kafka writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops settlement events. Used when publishing is disabled.
type NopPublisher struct{}

// PublishSettlement does nothing
func (NopPublisher) PublishSettlement(context.Context, *models.SettlementEvent) error {
	return nil
}
