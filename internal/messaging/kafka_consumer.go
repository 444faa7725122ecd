package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/store"
)

// errPoison marks messages that can never be processed and are committed anyway
var errPoison = errors.New("unprocessable message")

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// messageReader is the subset of *kafka.Reader used by the consumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// KafkaConsumer consumes relayed messages from Kafka and tracks them as bets.
// It lets an external relay feed the settlement engine without the Telegram client.
type KafkaConsumer struct {
	reader  messageReader
	tracker service.Tracker
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

// KafkaConsumerConfig holds Kafka consumer configuration
type KafkaConsumerConfig struct {
	Brokers []string // e.g., ["localhost:9092"]
	Topic   string   // e.g., "brotherbot.relayed"
	GroupID string   // e.g., "brotherbot"
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(
	config KafkaConsumerConfig,
	tracker service.Tracker,
	logger zerolog.Logger,
) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1,
		MaxBytes:       1e6, // 1MB
		CommitInterval: time.Second,
	})

	return newKafkaConsumer(reader, tracker, logger)
}

func newKafkaConsumer(reader messageReader, tracker service.Tracker, logger zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:  reader,
		tracker: tracker,
		sleep:   sleepContext,
		logger:  logger.With().Str("component", "kafka_consumer").Logger(),
	}
}

// Start begins consuming messages from Kafka. A message is committed only once it is
// tracked, found to be a duplicate, or found unprocessable; transient failures are retried
// on the same message so later commits never skip it.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group_id", c.reader.Config().GroupID).
		Msg("started consuming from Kafka")

	var fetchDelay time.Duration
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("stopping Kafka consumer")
			return nil

		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				fetchDelay = nextDelay(fetchDelay)
				c.logger.Error().Err(err).Dur("retry_in", fetchDelay).Msg("failed to fetch message")
				if err := c.sleep(ctx, fetchDelay); err != nil {
					return nil
				}
				continue
			}
			fetchDelay = 0

			if err := c.handleMessage(ctx, msg); err != nil {
				// Stopped before the message was processed; it is redelivered after restart
				c.logger.Info().Int64("offset", msg.Offset).Msg("stopping Kafka consumer")
				return nil
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error().Err(err).Msg("failed to commit message")
			}
		}
	}
}

// handleMessage processes msg until it succeeds or turns out to be unprocessable. It
// returns an error only when ctx is done.
func (c *KafkaConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	var delay time.Duration
	for attempt := 1; ; attempt++ {
		err := c.processMessage(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, errPoison) {
			c.logger.Warn().
				Err(err).
				Int64("offset", msg.Offset).
				Msg("skipping unprocessable message")
			return nil
		}

		delay = nextDelay(delay)
		c.logger.Error().
			Err(err).
			Int64("offset", msg.Offset).
			Str("key", string(msg.Key)).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("failed to process message")
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// processMessage tracks a single relayed message. Redeliveries of an already
// tracked message are acknowledged without a second bet.
func (c *KafkaConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var relayed models.RelayedMessage
	if err := json.Unmarshal(msg.Value, &relayed); err != nil {
		return fmt.Errorf("%w: failed to unmarshal message: %v", errPoison, err)
	}
	if relayed.ReceivedAt.IsZero() {
		relayed.ReceivedAt = msg.Time
	}

	id, err := c.tracker.Track(ctx, &relayed)
	switch {
	case errors.Is(err, store.ErrDuplicateBet):
		c.logger.Debug().
			Int64("chat_id", relayed.ChatID).
			Int("message_id", relayed.MessageID).
			Msg("message already tracked")
		return nil
	case errors.Is(err, service.ErrInvalidMessage):
		return fmt.Errorf("%w: %v", errPoison, err)
	case err != nil:
		return fmt.Errorf("failed to track message: %w", err)
	}

	c.logger.Debug().
		Int64("bet_id", id).
		Int("message_id", relayed.MessageID).
		Int64("offset", msg.Offset).
		Msg("tracked relayed message")

	return nil
}

// Close closes the Kafka reader
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// nextDelay doubles the previous delay, starting at retryBaseDelay and capped at retryMaxDelay
func nextDelay(prev time.Duration) time.Duration {
	if prev <= 0 {
		return retryBaseDelay
	}
	if next := prev * 2; next < retryMaxDelay {
		return next
	}
	return retryMaxDelay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
