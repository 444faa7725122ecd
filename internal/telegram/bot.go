package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// BotAPI is the subset of *tgbotapi.BotAPI used by the relay and the messenger
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBot authorizes a bot token against the Bot API
func NewBot(token string, logger zerolog.Logger) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorized")
	return bot, nil
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// withFloodRetry runs call and, when Telegram answers with retry_after, waits and runs it once more
func withFloodRetry(ctx context.Context, sleep sleepFunc, logger zerolog.Logger, call func() error) error {
	err := call()
	wait, ok := retryAfter(err)
	if !ok {
		return err
	}

	logger.Warn().Dur("wait", wait).Msg("flood control, retrying once")
	if err := sleep(ctx, wait); err != nil {
		return err
	}
	return call()
}

func retryAfter(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter)*time.Second + time.Second, true
	}
	return 0, false
}

// uneditableErrors are Bad Request descriptions that no retry will fix
var uneditableErrors = []string{
	"message can't be edited",
	"message to edit not found",
	"message is too long",
	"message_too_long",
	"message caption is too long",
}

func isUneditable(err error) bool {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) || tgErr.Code != 400 {
		return false
	}
	desc := strings.ToLower(tgErr.Message)
	for _, s := range uneditableErrors {
		if strings.Contains(desc, s) {
			return true
		}
	}
	return false
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
