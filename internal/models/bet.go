package models

import (
	"fmt"
	"time"
)

// Status is the settlement state of a tracked bet
type Status string

const (
	StatusPending   Status = "pending"
	StatusGreen     Status = "green"
	StatusRed       Status = "red"
	StatusCancelled Status = "cancelled"
)

// IsFinal reports whether the status can no longer change
func (s Status) IsFinal() bool {
	return s == StatusGreen || s == StatusRed || s == StatusCancelled
}

// ParseStatus validates a status string
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusGreen, StatusRed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// MessageKind tells whether the relayed text lives in the message body or in a media caption
type MessageKind string

const (
	MessageKindText    MessageKind = "text"
	MessageKindCaption MessageKind = "caption"
)

// Outcome is the result of deciding a prediction against scraped data
type Outcome int

const (
	Undecided Outcome = iota
	Green
	Red
)

func (o Outcome) String() string {
	switch o {
	case Green:
		return "green"
	case Red:
		return "red"
	default:
		return "undecided"
	}
}

// Status maps a decided outcome to the status it settles into
func (o Outcome) Status() (Status, bool) {
	switch o {
	case Green:
		return StatusGreen, true
	case Red:
		return StatusRed, true
	}
	return "", false
}

// Tally is a home/away pair of counts (goals or corners)
type Tally struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Total returns home + away
func (t Tally) Total() int {
	return t.Home + t.Away
}

func (t *Tally) String() string {
	if t == nil {
		return "none"
	}
	return fmt.Sprintf("%d-%d", t.Home, t.Away)
}

// TrackedBet is one forwarded message awaiting settlement
type TrackedBet struct {
	ID                   int64       `json:"id"`
	DestinationChatID    int64       `json:"destination_chat_id"`
	DestinationMessageID int         `json:"destination_message_id"`
	MessageText          string      `json:"message_text"`
	MessageKind          MessageKind `json:"message_kind"`
	SourceURL            string      `json:"source_url,omitempty"`
	HomeTeam             string      `json:"home_team,omitempty"`
	AwayTeam             string      `json:"away_team,omitempty"`
	Prediction           Prediction  `json:"prediction"`
	Status               Status      `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	LastCheckedAt        time.Time   `json:"last_checked_at"`
	Note                 string      `json:"note"`
}

// HasTeams reports whether both team names were extracted
func (b *TrackedBet) HasTeams() bool {
	return b.HomeTeam != "" && b.AwayTeam != ""
}

// BetFilter narrows a bet listing
type BetFilter struct {
	Status Status // empty means any
	Limit  int
}
