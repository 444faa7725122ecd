package service

import (
	"context"
	"errors"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

// ErrMessageUneditable is returned by a Messenger when the edit can never succeed, such as
// a message that cannot be edited or a text over the length limit
var ErrMessageUneditable = errors.New("message cannot be edited")

// Messenger edits a message previously delivered to the destination chat
type Messenger interface {
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kind models.MessageKind) error
}

// Publisher announces settlements to downstream consumers
type Publisher interface {
	PublishSettlement(ctx context.Context, event *models.SettlementEvent) error
}

// Tracker turns a relayed message into a tracked bet
type Tracker interface {
	Track(ctx context.Context, msg *models.RelayedMessage) (int64, error)
}
