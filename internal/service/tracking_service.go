package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/metrics"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/pkg/prediction"
)

const cancelNote = "cancelled externally"

// ErrInvalidMessage is returned by Track when the relayed message has no destination handle
var ErrInvalidMessage = errors.New("relayed message has no destination chat or message id")

// TrackingService records relayed messages as pending bets and serves them to the API
type TrackingService struct {
	store   Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewTrackingService creates a new tracking service
func NewTrackingService(store Store, m *metrics.Metrics, logger zerolog.Logger) *TrackingService {
	return &TrackingService{
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "tracking_service").Logger(),
	}
}

// Track parses the source text of a relayed message and inserts it as a pending bet
func (s *TrackingService) Track(ctx context.Context, msg *models.RelayedMessage) (int64, error) {
	if msg == nil || msg.ChatID == 0 || msg.MessageID == 0 {
		return 0, ErrInvalidMessage
	}

	source := msg.SourceText
	if source == "" {
		source = msg.Text
	}
	home, away, _ := prediction.Teams(source)

	bet := &models.TrackedBet{
		DestinationChatID:    msg.ChatID,
		DestinationMessageID: msg.MessageID,
		MessageText:          msg.Text,
		MessageKind:          msg.Kind,
		SourceURL:            prediction.SourceURL(source),
		HomeTeam:             home,
		AwayTeam:             away,
		Prediction:           prediction.Parse(source),
		Status:               models.StatusPending,
		CreatedAt:            msg.ReceivedAt,
		Note:                 prediction.Preview(source),
	}

	id, err := s.store.Insert(ctx, bet)
	if err != nil {
		return 0, fmt.Errorf("failed to track message %d: %w", msg.MessageID, err)
	}

	s.metrics.BetsTracked.Inc()

	s.logger.Info().
		Int64("bet_id", id).
		Int("message_id", msg.MessageID).
		Str("source_url", bet.SourceURL).
		Str("home", home).
		Str("away", away).
		Str("prediction", bet.Prediction.String()).
		Msg("tracking bet")

	return id, nil
}

// GetBet returns a tracked bet by id
func (s *TrackingService) GetBet(ctx context.Context, id int64) (*models.TrackedBet, error) {
	return s.store.Get(ctx, id)
}

// ListBets returns tracked bets matching the filter
func (s *TrackingService) ListBets(ctx context.Context, filter models.BetFilter) ([]*models.TrackedBet, error) {
	return s.store.List(ctx, filter)
}

// CancelBet stops tracking a pending bet. The destination message is left untouched.
func (s *TrackingService) CancelBet(ctx context.Context, id int64) (*models.TrackedBet, error) {
	if err := s.store.MarkSettled(ctx, id, models.StatusCancelled, cancelNote); err != nil {
		return nil, err
	}

	s.metrics.BetsSettled.WithLabelValues(string(models.StatusCancelled)).Inc()
	s.logger.Info().Int64("bet_id", id).Msg("bet cancelled")

	return s.store.Get(ctx, id)
}

// Ping checks the store
func (s *TrackingService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
