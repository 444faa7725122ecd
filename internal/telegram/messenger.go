package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
)

// Messenger edits destination messages through the Bot API
type Messenger struct {
	bot    BotAPI
	sleep  sleepFunc
	logger zerolog.Logger
}

// NewMessenger creates a new messenger
func NewMessenger(bot BotAPI, logger zerolog.Logger) *Messenger {
	return &Messenger{
		bot:    bot,
		sleep:  sleepContext,
		logger: logger.With().Str("component", "telegram_messenger").Logger(),
	}
}

// EditMessage replaces the text or caption of a message. An edit that leaves the
// message unchanged counts as success.
func (m *Messenger) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kind models.MessageKind) error {
	var edit tgbotapi.Chattable
	if kind == models.MessageKindCaption {
		edit = tgbotapi.NewEditMessageCaption(chatID, messageID, text)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}

	err := withFloodRetry(ctx, m.sleep, m.logger, func() error {
		_, err := m.bot.Request(edit)
		return err
	})
	if isNotModified(err) {
		m.logger.Debug().Int64("chat_id", chatID).Int("message_id", messageID).Msg("message already up to date")
		return nil
	}
	if isUneditable(err) {
		return fmt.Errorf("failed to edit message %d in chat %d: %w: %w", messageID, chatID, service.ErrMessageUneditable, err)
	}
	if err != nil {
		return fmt.Errorf("failed to edit message %d in chat %d: %w", messageID, chatID, err)
	}

	m.logger.Info().
		Int64("chat_id", chatID).
		Int("message_id", messageID).
		Str("kind", string(kind)).
		Msg("message edited")

	return nil
}
