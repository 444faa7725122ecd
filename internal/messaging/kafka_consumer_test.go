package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/mocks"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/store"
)

// fakeReader serves queued messages and cancels the consumer once drained
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	fetchErrs []error
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Config() kafka.ReaderConfig {
	return kafka.ReaderConfig{Topic: "brotherbot.relayed", GroupID: "test-group"}
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

// testKafkaConsumerSetup is a helper struct to hold test dependencies
type testKafkaConsumerSetup struct {
	consumer    *KafkaConsumer
	reader      *fakeReader
	mockTracker *mocks.MockTracker
	ctx         context.Context
	cancel      context.CancelFunc
	sleeps      []time.Duration
}

// setupTestKafkaConsumer creates a consumer over a fake reader and a mocked tracker
func setupTestKafkaConsumer(t *testing.T, msgs ...kafka.Message) *testKafkaConsumerSetup {
	ctrl := gomock.NewController(t)
	mockTracker := mocks.NewMockTracker(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reader := &fakeReader{queue: msgs, cancel: cancel}

	setup := &testKafkaConsumerSetup{
		consumer:    newKafkaConsumer(reader, mockTracker, zerolog.Nop()),
		reader:      reader,
		mockTracker: mockTracker,
		ctx:         ctx,
		cancel:      cancel,
	}
	// Record waits instead of sleeping
	setup.consumer.sleep = func(ctx context.Context, d time.Duration) error {
		setup.sleeps = append(setup.sleeps, d)
		return ctx.Err()
	}
	return setup
}

func relayedMessage(t *testing.T, offset int64, msg models.RelayedMessage) kafka.Message {
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value, Time: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// TestNewKafkaConsumer tests consumer creation
func TestNewKafkaConsumer(t *testing.T) {
	ctrl := gomock.NewController(t)

	config := KafkaConsumerConfig{
		Brokers: []string{"broker1:9092", "broker2:9092"},
		Topic:   "brotherbot.relayed",
		GroupID: "brotherbot",
	}

	consumer := NewKafkaConsumer(config, mocks.NewMockTracker(ctrl), zerolog.Nop())

	require.NotNil(t, consumer)
	assert.Equal(t, config.Topic, consumer.reader.Config().Topic)
	assert.Equal(t, config.GroupID, consumer.reader.Config().GroupID)
	assert.Equal(t, config.Brokers, consumer.reader.Config().Brokers)
	assert.NoError(t, consumer.Close())
}

// TestKafkaConsumer_TracksAndCommits tests the happy path
func TestKafkaConsumer_TracksAndCommits(t *testing.T) {
	msg := models.RelayedMessage{ChatID: -100, MessageID: 9, Text: "Over 9.5 corners", Kind: models.MessageKindText}
	setup := setupTestKafkaConsumer(t, relayedMessage(t, 4, msg))

	setup.mockTracker.EXPECT().
		Track(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got *models.RelayedMessage) (int64, error) {
			assert.Equal(t, msg.ChatID, got.ChatID)
			assert.Equal(t, msg.MessageID, got.MessageID)
			assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), got.ReceivedAt)
			return 1, nil
		})

	err := setup.consumer.Start(setup.ctx)

	assert.NoError(t, err)
	assert.Equal(t, []int64{4}, setup.reader.committed)
}

// TestKafkaConsumer_DuplicateIsCommitted tests that redeliveries are acknowledged
func TestKafkaConsumer_DuplicateIsCommitted(t *testing.T) {
	setup := setupTestKafkaConsumer(t, relayedMessage(t, 7, models.RelayedMessage{ChatID: 1, MessageID: 2}))

	setup.mockTracker.EXPECT().
		Track(gomock.Any(), gomock.Any()).
		Return(int64(0), errors.Join(errors.New("failed to track message 2"), store.ErrDuplicateBet))

	require.NoError(t, setup.consumer.Start(setup.ctx))
	assert.Equal(t, []int64{7}, setup.reader.committed)
}

// TestKafkaConsumer_TransientFailureRetried tests that a failed message is retried before
// anything after it is committed
func TestKafkaConsumer_TransientFailureRetried(t *testing.T) {
	setup := setupTestKafkaConsumer(t,
		relayedMessage(t, 10, models.RelayedMessage{ChatID: 1, MessageID: 2}),
		relayedMessage(t, 11, models.RelayedMessage{ChatID: 1, MessageID: 3}),
	)

	trackMessage := func(messageID int, id int64, err error) func(context.Context, *models.RelayedMessage) (int64, error) {
		return func(_ context.Context, got *models.RelayedMessage) (int64, error) {
			assert.Equal(t, messageID, got.MessageID)
			if err == nil {
				// Nothing may be committed before offset 10 is tracked
				assert.Empty(t, setup.reader.committed)
			}
			return id, err
		}
	}

	gomock.InOrder(
		setup.mockTracker.EXPECT().Track(gomock.Any(), gomock.Any()).DoAndReturn(trackMessage(2, 0, errors.New("database is locked"))),
		setup.mockTracker.EXPECT().Track(gomock.Any(), gomock.Any()).DoAndReturn(trackMessage(2, 5, nil)),
		setup.mockTracker.EXPECT().Track(gomock.Any(), gomock.Any()).Return(int64(6), nil),
	)

	require.NoError(t, setup.consumer.Start(setup.ctx))
	assert.Equal(t, []int64{10, 11}, setup.reader.committed)
	assert.Equal(t, []time.Duration{retryBaseDelay}, setup.sleeps)
}

// TestKafkaConsumer_RetryStopsOnShutdown tests that a message still failing at shutdown
// is left uncommitted
func TestKafkaConsumer_RetryStopsOnShutdown(t *testing.T) {
	setup := setupTestKafkaConsumer(t,
		relayedMessage(t, 10, models.RelayedMessage{ChatID: 1, MessageID: 2}),
		relayedMessage(t, 11, models.RelayedMessage{ChatID: 1, MessageID: 3}),
	)

	attempts := 0
	setup.mockTracker.EXPECT().
		Track(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got *models.RelayedMessage) (int64, error) {
			assert.Equal(t, 2, got.MessageID)
			attempts++
			if attempts == 3 {
				setup.cancel()
			}
			return 0, errors.New("database is locked")
		}).
		Times(3)

	require.NoError(t, setup.consumer.Start(setup.ctx))
	assert.Empty(t, setup.reader.committed)
	assert.Equal(t, []time.Duration{retryBaseDelay, 2 * retryBaseDelay, 4 * retryBaseDelay}, setup.sleeps)
}

// TestKafkaConsumer_PoisonMessages tests that unprocessable messages are skipped and committed
func TestKafkaConsumer_PoisonMessages(t *testing.T) {
	setup := setupTestKafkaConsumer(t,
		kafka.Message{Offset: 1, Value: []byte("{not json")},
		relayedMessage(t, 2, models.RelayedMessage{Text: "no destination"}),
	)

	setup.mockTracker.EXPECT().
		Track(gomock.Any(), gomock.Any()).
		Return(int64(0), service.ErrInvalidMessage)

	require.NoError(t, setup.consumer.Start(setup.ctx))
	assert.Equal(t, []int64{1, 2}, setup.reader.committed)
}

// TestKafkaConsumer_FetchErrorContinues tests that broker errors back off without stopping the loop
func TestKafkaConsumer_FetchErrorContinues(t *testing.T) {
	setup := setupTestKafkaConsumer(t, relayedMessage(t, 3, models.RelayedMessage{ChatID: 1, MessageID: 2}))
	setup.reader.fetchErrs = []error{
		errors.New("broker not available"),
		errors.New("broker not available"),
	}

	setup.mockTracker.EXPECT().Track(gomock.Any(), gomock.Any()).Return(int64(1), nil)

	require.NoError(t, setup.consumer.Start(setup.ctx))
	assert.Equal(t, []int64{3}, setup.reader.committed)
	assert.Equal(t, []time.Duration{retryBaseDelay, 2 * retryBaseDelay}, setup.sleeps)
}

// TestNextDelay tests the retry backoff sequence
func TestNextDelay(t *testing.T) {
	assert.Equal(t, retryBaseDelay, nextDelay(0))
	assert.Equal(t, 2*retryBaseDelay, nextDelay(retryBaseDelay))
	assert.Equal(t, retryMaxDelay, nextDelay(20*time.Second))
	assert.Equal(t, retryMaxDelay, nextDelay(retryMaxDelay))
}

// TestKafkaConsumer_ContextCancellation tests context cancellation handling
func TestKafkaConsumer_ContextCancellation(t *testing.T) {
	setup := setupTestKafkaConsumer(t)

	ctx, cancel := context.WithCancel(setup.ctx)
	cancel()

	done := make(chan error)
	go func() {
		done <- setup.consumer.Start(ctx)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Consumer did not stop within timeout")
	}

	assert.NoError(t, setup.consumer.Close())
	assert.True(t, setup.reader.closed)
}
