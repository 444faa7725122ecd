package models

import (
	"time"

	"github.com/google/uuid"
)

// RelayedMessage is what the relay reports after delivering a message to the destination.
// It arrives either from the Telegram relay or from the ingest Kafka topic.
type RelayedMessage struct {
	ChatID     int64       `json:"chat_id"`
	MessageID  int         `json:"message_id"`
	Text       string      `json:"text"`        // text as delivered to the destination
	Kind       MessageKind `json:"kind"`        // text or caption
	SourceText string      `json:"source_text"` // original text before replacements
	ReceivedAt time.Time   `json:"received_at"`
}

// SettlementEvent is published once a bet settles
type SettlementEvent struct {
	ID         uuid.UUID  `json:"id"`
	BetID      int64      `json:"bet_id"`
	ChatID     int64      `json:"chat_id"`
	MessageID  int        `json:"message_id"`
	Status     Status     `json:"status"`
	Prediction Prediction `json:"prediction"`
	Note       string     `json:"note"`
	SettledAt  time.Time  `json:"settled_at"`
}
