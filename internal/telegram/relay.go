package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/metrics"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/store"
	"github.com/mauriiciiosouzaa/BrotherBot/pkg/prediction"
)

const (
	ModeCopy    = "copy"
	ModeForward = "forward"
)

// RelayConfig holds the source filter, the destination and the delivery options
type RelayConfig struct {
	SourceChatID      int64
	SourceUsername    string // with or without the leading @
	DestinationChatID int64
	NotifyChatID      int64 // 0 disables notifications
	Mode              string
	BotsOnly          bool
	ReplaceFrom       string // literal, case-insensitive
	ReplacePattern    string // regular expression, case-insensitive; wins over ReplaceFrom
	ReplaceTo         string
}

// Relay copies or forwards messages from the source chat to the destination chat
// and hands each delivered message to the tracker.
type Relay struct {
	bot      BotAPI
	tracker  service.Tracker
	metrics  *metrics.Metrics
	config   RelayConfig
	username string
	replace  *regexp.Regexp
	sleep    sleepFunc
	logger   zerolog.Logger
}

// delivered is a message as it landed in the destination chat
type delivered struct {
	messageID int
	text      string
	kind      models.MessageKind
}

// NewRelay creates a relay. It fails when the destination or the mode is invalid.
func NewRelay(
	config RelayConfig,
	bot BotAPI,
	tracker service.Tracker,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*Relay, error) {
	if config.DestinationChatID == 0 {
		return nil, errors.New("relay destination chat id is required")
	}

	config.Mode = strings.ToLower(strings.TrimSpace(config.Mode))
	switch config.Mode {
	case "":
		config.Mode = ModeCopy
	case ModeCopy, ModeForward:
	default:
		return nil, fmt.Errorf("unknown relay mode %q", config.Mode)
	}

	r := &Relay{
		bot:      bot,
		tracker:  tracker,
		metrics:  m,
		config:   config,
		username: normalizeUsername(config.SourceUsername),
		sleep:    sleepContext,
		logger:   logger.With().Str("component", "telegram_relay").Logger(),
	}

	switch pattern, from := strings.TrimSpace(config.ReplacePattern), strings.TrimSpace(config.ReplaceFrom); {
	case pattern != "":
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid replace pattern: %w", err)
		}
		r.replace = re
	case from != "":
		r.replace = regexp.MustCompile("(?i)" + regexp.QuoteMeta(from))
	}

	return r, nil
}

// Start long-polls updates until ctx is cancelled
func (r *Relay) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "channel_post"}

	updates := r.bot.GetUpdatesChan(u)

	r.logger.Info().
		Int64("source_chat_id", r.config.SourceChatID).
		Str("source_username", r.username).
		Int64("destination_chat_id", r.config.DestinationChatID).
		Str("mode", r.effectiveMode()).
		Bool("bots_only", r.config.BotsOnly).
		Msg("relay started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("relay shutting down")
			r.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil {
				msg = update.ChannelPost
			}
			if msg != nil {
				r.HandleMessage(ctx, msg)
			}
		}
	}
}

// HandleMessage relays a single message when it passes the source filter
func (r *Relay) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !r.fromSource(msg) {
		return
	}
	if r.config.BotsOnly && (msg.From == nil || !msg.From.IsBot) {
		r.logger.Debug().Int("message_id", msg.MessageID).Msg("ignoring message not sent by a bot")
		return
	}

	source := messageText(msg)
	mode := r.effectiveMode()

	var sent delivered
	err := withFloodRetry(ctx, r.sleep, r.logger, func() error {
		var err error
		sent, err = r.deliver(msg, mode, source)
		return err
	})
	if err != nil {
		r.metrics.RelayFailures.Inc()
		r.logger.Error().
			Err(err).
			Int64("chat_id", msg.Chat.ID).
			Int("message_id", msg.MessageID).
			Str("mode", mode).
			Msg("failed to relay message")
		return
	}

	r.metrics.MessagesRelayed.WithLabelValues(mode).Inc()
	r.logger.Info().
		Int("source_message_id", msg.MessageID).
		Int("destination_message_id", sent.messageID).
		Str("mode", mode).
		Str("preview", prediction.Preview(source)).
		Msg("message relayed")

	// album items without a caption carry no tip
	if msg.MediaGroupID == "" || source != "" {
		r.track(ctx, msg, sent, source)
	}
	r.notify(ctx, source)
}

func (r *Relay) deliver(msg *tgbotapi.Message, mode, source string) (delivered, error) {
	kind := models.MessageKindCaption
	if msg.Text != "" {
		kind = models.MessageKindText
	}

	if mode == ModeForward {
		sent, err := r.bot.Send(tgbotapi.NewForward(r.config.DestinationChatID, msg.Chat.ID, msg.MessageID))
		if err != nil {
			return delivered{}, err
		}
		return delivered{messageID: sent.MessageID, text: source, kind: kind}, nil
	}

	text := r.replaceText(source)

	if kind == models.MessageKindText {
		sent, err := r.bot.Send(tgbotapi.NewMessage(r.config.DestinationChatID, text))
		if err != nil {
			return delivered{}, err
		}
		return delivered{messageID: sent.MessageID, text: text, kind: kind}, nil
	}

	copyConfig := tgbotapi.NewCopyMessage(r.config.DestinationChatID, msg.Chat.ID, msg.MessageID)
	copyConfig.Caption = text
	id, err := r.bot.CopyMessage(copyConfig)
	if err != nil {
		return delivered{}, err
	}
	return delivered{messageID: id.MessageID, text: text, kind: kind}, nil
}

func (r *Relay) track(ctx context.Context, msg *tgbotapi.Message, sent delivered, source string) {
	_, err := r.tracker.Track(ctx, &models.RelayedMessage{
		ChatID:     r.config.DestinationChatID,
		MessageID:  sent.messageID,
		Text:       sent.text,
		Kind:       sent.kind,
		SourceText: source,
		ReceivedAt: msg.Time(),
	})
	if errors.Is(err, store.ErrDuplicateBet) {
		return
	}
	if err != nil {
		r.logger.Error().Err(err).Int("destination_message_id", sent.messageID).Msg("failed to track relayed message")
	}
}

func (r *Relay) notify(ctx context.Context, source string) {
	if r.config.NotifyChatID == 0 {
		return
	}

	text := fmt.Sprintf("✅ Encaminhado para %d\nPrévia: %s", r.config.DestinationChatID, prediction.Preview(source))
	notice := tgbotapi.NewMessage(r.config.NotifyChatID, text)
	notice.DisableWebPagePreview = true

	err := withFloodRetry(ctx, r.sleep, r.logger, func() error {
		_, err := r.bot.Send(notice)
		return err
	})
	if err != nil {
		r.logger.Warn().Err(err).Int64("notify_chat_id", r.config.NotifyChatID).Msg("failed to send notification")
	}
}

// effectiveMode falls back to copy whenever a replacement is configured
func (r *Relay) effectiveMode() string {
	if r.config.Mode == ModeForward && r.replace != nil {
		return ModeCopy
	}
	return r.config.Mode
}

func (r *Relay) replaceText(text string) string {
	if r.replace == nil || r.config.ReplaceTo == "" {
		return text
	}
	return r.replace.ReplaceAllLiteralString(text, r.config.ReplaceTo)
}

func (r *Relay) fromSource(msg *tgbotapi.Message) bool {
	if msg.Chat == nil {
		return false
	}
	if r.config.SourceChatID != 0 && msg.Chat.ID == r.config.SourceChatID {
		return true
	}
	if r.username == "" {
		return false
	}

	candidates := []string{msg.Chat.UserName}
	if msg.From != nil {
		candidates = append(candidates, msg.From.UserName)
	}
	if msg.SenderChat != nil {
		candidates = append(candidates, msg.SenderChat.UserName)
	}
	for _, c := range candidates {
		if normalizeUsername(c) == r.username {
			return true
		}
	}
	return false
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
