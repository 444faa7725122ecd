package service

import (
	"context"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

// Store is an interface that abstracts durable tracking of bets
// This allows for easier testing and mocking
type Store interface {
	Insert(ctx context.Context, bet *models.TrackedBet) (int64, error)
	ListPending(ctx context.Context) ([]*models.TrackedBet, error)
	MarkSettled(ctx context.Context, id int64, status models.Status, note string) error
	Touch(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*models.TrackedBet, error)
	List(ctx context.Context, filter models.BetFilter) ([]*models.TrackedBet, error)
	Ping(ctx context.Context) error
	Close() error
}
