package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/metrics"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/store"
	"github.com/mauriiciiosouzaa/BrotherBot/pkg/outcome"
	"github.com/mauriiciiosouzaa/BrotherBot/pkg/result"
)

const (
	DefaultInterval    = 90 * time.Second
	DefaultGreenMarker = "✅✅✅✅✅✅✅✅✅✅✅✅"
	DefaultRedMarker   = "✖️"
)

// PollerConfig holds settlement poller timing and markers
type PollerConfig struct {
	Interval    time.Duration // between scan passes
	StartDelay  time.Duration // before the first pass
	EditDelay   time.Duration // after each settlement edit
	MaxBackoff  time.Duration // cap on the wait after a failed pass
	GreenMarker string
	RedMarker   string
}

// Poller periodically decides pending bets and marks their destination messages.
// It is the only writer of status transitions besides external cancellation.
type Poller struct {
	store     Store
	pages     PageFetcher
	search    Searcher
	messenger Messenger
	publisher Publisher
	metrics   *metrics.Metrics
	config    PollerConfig
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	logger    zerolog.Logger
}

// NewPoller creates a settlement poller. search may be nil to disable the search fallback.
func NewPoller(
	config PollerConfig,
	store Store,
	pages PageFetcher,
	search Searcher,
	messenger Messenger,
	publisher Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.GreenMarker == "" {
		config.GreenMarker = DefaultGreenMarker
	}
	if config.RedMarker == "" {
		config.RedMarker = DefaultRedMarker
	}

	return &Poller{
		store:     store,
		pages:     pages,
		search:    search,
		messenger: messenger,
		publisher: publisher,
		metrics:   m,
		config:    config,
		now:       time.Now,
		sleep:     sleepContext,
		logger:    logger.With().Str("component", "settlement_poller").Logger(),
	}
}

// Run scans pending bets every interval until ctx is cancelled. A failed pass is retried
// after min(interval, max backoff); Run itself never fails.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.config.Interval).
		Dur("start_delay", p.config.StartDelay).
		Msg("settlement poller started")

	if err := p.sleep(ctx, p.config.StartDelay); err != nil {
		return nil
	}

	for {
		wait := p.config.Interval
		if err := p.ScanOnce(ctx); err != nil {
			wait = p.backoff()
			p.logger.Error().Err(err).Dur("retry_in", wait).Msg("scan pass failed")
		}

		if err := p.sleep(ctx, wait); err != nil {
			p.logger.Info().Msg("settlement poller stopped")
			return nil
		}
	}
}

func (p *Poller) backoff() time.Duration {
	if p.config.MaxBackoff > 0 && p.config.MaxBackoff < p.config.Interval {
		return p.config.MaxBackoff
	}
	return p.config.Interval
}

// ScanOnce runs one pass over every pending bet. It returns an error only when the store
// fails; failures of a single bet are logged and the bet is left for the next pass.
// Cancellation is honoured between bets.
func (p *Poller) ScanOnce(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan pass panicked: %v", r)
		}
		p.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			p.metrics.ScanFailures.Inc()
		}
	}()

	bets, err := p.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending bets: %w", err)
	}
	p.metrics.PendingBets.Set(float64(len(bets)))

	if len(bets) > 0 {
		p.logger.Debug().Int("pending", len(bets)).Msg("scanning pending bets")
	}

	for _, bet := range bets {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.processSafely(ctx, bet); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

func (p *Poller) processSafely(ctx context.Context, bet *models.TrackedBet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Int64("bet_id", bet.ID).
				Msg("bet processing panicked, leaving it for the next pass")
			err = nil
		}
	}()
	return p.process(ctx, bet)
}

// process decides one bet. Only store failures are returned.
func (p *Poller) process(ctx context.Context, bet *models.TrackedBet) error {
	score, corners := p.gather(ctx, bet)

	decision := outcome.Decide(bet.Prediction, score, corners, bet.HomeTeam, bet.AwayTeam)

	p.logger.Debug().
		Int64("bet_id", bet.ID).
		Str("prediction", bet.Prediction.String()).
		Stringer("score", score).
		Stringer("corners", corners).
		Str("outcome", decision.String()).
		Msg("bet evaluated")

	status, decided := decision.Status()
	if !decided {
		return p.touch(ctx, bet)
	}
	return p.settle(ctx, bet, status, settlementNote(score, corners))
}

// gather extracts score and corners from the source URL, then fills whatever is still
// missing from the search fallback.
func (p *Poller) gather(ctx context.Context, bet *models.TrackedBet) (score, corners *models.Tally) {
	if bet.SourceURL != "" {
		text, ok := p.pages.Fetch(ctx, bet.SourceURL)
		p.metrics.ObserveFetch("url", ok)
		if ok {
			score, _ = result.Score(text)
			corners, _ = result.Corners(text)
		}
	}

	if (score == nil || corners == nil) && bet.HasTeams() && p.search != nil {
		text, ok := p.search.Search(ctx, bet.HomeTeam, bet.AwayTeam)
		p.metrics.ObserveFetch("search", ok)
		if ok {
			if score == nil {
				score, _ = result.Score(text)
			}
			if corners == nil {
				corners, _ = result.Corners(text)
			}
		}
	}

	return score, corners
}

func (p *Poller) touch(ctx context.Context, bet *models.TrackedBet) error {
	err := p.store.Touch(ctx, bet.ID)
	if errors.Is(err, store.ErrNotFound) {
		p.logger.Warn().Int64("bet_id", bet.ID).Msg("bet disappeared during scan")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to touch bet %d: %w", bet.ID, err)
	}
	return nil
}

// settle edits the destination message, then records the status. The bet is reloaded
// first so a cancellation made since the pass started is respected; one landing between
// the reload and the edit still gets the marker, and MarkSettled then refuses the
// transition. A failed edit leaves the bet pending so the next pass retries it.
func (p *Poller) settle(ctx context.Context, bet *models.TrackedBet, status models.Status, note string) error {
	current, err := p.store.Get(ctx, bet.ID)
	if errors.Is(err, store.ErrNotFound) {
		p.logger.Warn().Int64("bet_id", bet.ID).Msg("bet disappeared during scan")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reload bet %d: %w", bet.ID, err)
	}
	if current.Status != models.StatusPending {
		p.logger.Info().
			Int64("bet_id", bet.ID).
			Str("status", string(current.Status)).
			Msg("bet no longer pending, skipping edit")
		return nil
	}

	text := AppendMarker(bet.MessageText, p.marker(status))

	if err := p.messenger.EditMessage(ctx, bet.DestinationChatID, bet.DestinationMessageID, text, bet.MessageKind); err != nil {
		p.metrics.EditFailures.Inc()
		if errors.Is(err, ErrMessageUneditable) {
			return p.abandon(ctx, bet, err)
		}
		p.logger.Warn().
			Err(err).
			Int64("bet_id", bet.ID).
			Int64("chat_id", bet.DestinationChatID).
			Int("message_id", bet.DestinationMessageID).
			Msg("failed to edit settled message, retrying next pass")
		return p.touch(ctx, bet)
	}

	err = p.store.MarkSettled(ctx, bet.ID, status, note)
	if errors.Is(err, store.ErrNotPending) || errors.Is(err, store.ErrNotFound) {
		p.logger.Warn().Err(err).Int64("bet_id", bet.ID).Msg("bet changed during scan")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to settle bet %d: %w", bet.ID, err)
	}

	p.metrics.BetsSettled.WithLabelValues(string(status)).Inc()
	p.publish(ctx, bet, status, note)

	// Telegram flood control
	_ = p.sleep(ctx, p.config.EditDelay)
	return nil
}

// abandon cancels a bet whose destination message Telegram will never let us edit
func (p *Poller) abandon(ctx context.Context, bet *models.TrackedBet, editErr error) error {
	p.logger.Warn().
		Err(editErr).
		Int64("bet_id", bet.ID).
		Int64("chat_id", bet.DestinationChatID).
		Int("message_id", bet.DestinationMessageID).
		Msg("message cannot be edited, cancelling bet")

	err := p.store.MarkSettled(ctx, bet.ID, models.StatusCancelled, "edit rejected: "+editErr.Error())
	if errors.Is(err, store.ErrNotPending) || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cancel bet %d: %w", bet.ID, err)
	}

	p.metrics.BetsSettled.WithLabelValues(string(models.StatusCancelled)).Inc()
	return nil
}

func (p *Poller) publish(ctx context.Context, bet *models.TrackedBet, status models.Status, note string) {
	event := &models.SettlementEvent{
		ID:         uuid.New(),
		BetID:      bet.ID,
		ChatID:     bet.DestinationChatID,
		MessageID:  bet.DestinationMessageID,
		Status:     status,
		Prediction: bet.Prediction,
		Note:       note,
		SettledAt:  p.now().UTC(),
	}
	if err := p.publisher.PublishSettlement(ctx, event); err != nil {
		p.logger.Warn().Err(err).Int64("bet_id", bet.ID).Msg("failed to publish settlement")
	}
}

func (p *Poller) marker(status models.Status) string {
	if status == models.StatusGreen {
		return p.config.GreenMarker
	}
	return p.config.RedMarker
}

// AppendMarker returns the settled text of a message. It is derived from the original
// text only, so repeating an edit never stacks markers.
func AppendMarker(text, marker string) string {
	if text == "" {
		return marker
	}
	return text + "\n\n" + marker
}

func settlementNote(score, corners *models.Tally) string {
	return fmt.Sprintf("score=%s corners=%s", score, corners)
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
