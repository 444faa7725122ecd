package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	betColumns = `id, dest_chat_id, dest_msg_id, message_text, message_kind, source_url, home, away,
		prediction, status, created_at, last_checked_at, note`
)

// SQLStore persists tracked bets in a single table. Times are stored as unix milliseconds.
type SQLStore struct {
	db     *sqlx.DB
	now    func() time.Time
	logger zerolog.Logger
}

// betRow mirrors the tracked_bets table
type betRow struct {
	ID            int64          `db:"id"`
	DestChatID    int64          `db:"dest_chat_id"`
	DestMsgID     int64          `db:"dest_msg_id"`
	MessageText   sql.NullString `db:"message_text"`
	MessageKind   string         `db:"message_kind"`
	SourceURL     sql.NullString `db:"source_url"`
	Home          sql.NullString `db:"home"`
	Away          sql.NullString `db:"away"`
	Prediction    sql.NullString `db:"prediction"`
	Status        string         `db:"status"`
	CreatedAt     int64          `db:"created_at"`
	LastCheckedAt sql.NullInt64  `db:"last_checked_at"`
	Note          sql.NullString `db:"note"`
}

// NewSQLStore wraps an already migrated database
func NewSQLStore(db *sqlx.DB, logger zerolog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		now:    time.Now,
		logger: logger.With().Str("component", "tracking_store").Logger(),
	}
}

// Insert stores a new pending bet and returns its id. A second bet for the same
// destination message returns ErrDuplicateBet.
func (s *SQLStore) Insert(ctx context.Context, bet *models.TrackedBet) (int64, error) {
	prediction, err := models.EncodePrediction(bet.Prediction)
	if err != nil {
		return 0, err
	}

	if bet.Status == "" {
		bet.Status = models.StatusPending
	}
	if bet.MessageKind == "" {
		bet.MessageKind = models.MessageKindText
	}
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = s.now()
	}

	query := s.db.Rebind(`INSERT INTO tracked_bets
		(dest_chat_id, dest_msg_id, message_text, message_kind, source_url, home, away,
		 prediction, status, created_at, last_checked_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dest_chat_id, dest_msg_id) DO NOTHING
		RETURNING id`)

	var id int64
	err = s.db.QueryRowxContext(ctx, query,
		bet.DestinationChatID,
		bet.DestinationMessageID,
		nullString(bet.MessageText),
		string(bet.MessageKind),
		nullString(bet.SourceURL),
		nullString(bet.HomeTeam),
		nullString(bet.AwayTeam),
		prediction,
		string(bet.Status),
		toMillis(bet.CreatedAt),
		nullMillis(bet.LastCheckedAt),
		nullString(bet.Note),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDuplicateBet
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert bet: %w", err)
	}

	bet.ID = id

	s.logger.Debug().
		Int64("bet_id", id).
		Int64("chat_id", bet.DestinationChatID).
		Int("message_id", bet.DestinationMessageID).
		Str("prediction", bet.Prediction.String()).
		Msg("tracked bet inserted")

	return id, nil
}

// ListPending returns every pending bet in insertion order. Rows whose prediction cannot
// be decoded are logged and skipped so they stay pending instead of being misjudged.
func (s *SQLStore) ListPending(ctx context.Context) ([]*models.TrackedBet, error) {
	query := s.db.Rebind(`SELECT ` + betColumns + ` FROM tracked_bets WHERE status = ? ORDER BY id`)

	var rows []betRow
	if err := s.db.SelectContext(ctx, &rows, query, string(models.StatusPending)); err != nil {
		return nil, fmt.Errorf("failed to list pending bets: %w", err)
	}

	return s.toBets(rows), nil
}

// List returns bets newest first, optionally filtered by status
func (s *SQLStore) List(ctx context.Context, filter models.BetFilter) ([]*models.TrackedBet, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT ` + betColumns + ` FROM tracked_bets`
	args := []interface{}{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var rows []betRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}

	return s.toBets(rows), nil
}

// Get returns a single bet by id
func (s *SQLStore) Get(ctx context.Context, id int64) (*models.TrackedBet, error) {
	query := s.db.Rebind(`SELECT ` + betColumns + ` FROM tracked_bets WHERE id = ?`)

	var row betRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %d: %w", id, err)
	}

	return row.toBet()
}

// MarkSettled moves a pending bet to a final status. Only pending rows transition, so a
// bet is settled at most once.
func (s *SQLStore) MarkSettled(ctx context.Context, id int64, status models.Status, note string) error {
	if !status.IsFinal() {
		return fmt.Errorf("cannot settle bet %d as %q", id, status)
	}

	now := toMillis(s.now())
	query := s.db.Rebind(`UPDATE tracked_bets
		SET status = ?, note = ?,
		    last_checked_at = CASE WHEN last_checked_at > ? THEN last_checked_at ELSE ? END
		WHERE id = ? AND status = ?`)

	res, err := s.db.ExecContext(ctx, query, string(status), nullString(note), now, now, id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to settle bet %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to settle bet %d: %w", id, err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}

	s.logger.Info().
		Int64("bet_id", id).
		Str("status", string(status)).
		Str("note", note).
		Msg("bet settled")

	return nil
}

// Touch records a poll of the bet without changing its status. The timestamp never moves
// backwards.
func (s *SQLStore) Touch(ctx context.Context, id int64) error {
	now := toMillis(s.now())
	query := s.db.Rebind(`UPDATE tracked_bets
		SET last_checked_at = CASE WHEN last_checked_at > ? THEN last_checked_at ELSE ? END
		WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to touch bet %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch bet %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) toBets(rows []betRow) []*models.TrackedBet {
	bets := make([]*models.TrackedBet, 0, len(rows))
	for i := range rows {
		bet, err := rows[i].toBet()
		if err != nil {
			s.logger.Error().Err(err).Int64("bet_id", rows[i].ID).Msg("skipping unreadable bet")
			continue
		}
		bets = append(bets, bet)
	}
	return bets
}

func (r *betRow) toBet() (*models.TrackedBet, error) {
	prediction, err := models.DecodePrediction(r.Prediction.String)
	if err != nil {
		return nil, fmt.Errorf("bet %d: %w", r.ID, err)
	}

	bet := &models.TrackedBet{
		ID:                   r.ID,
		DestinationChatID:    r.DestChatID,
		DestinationMessageID: int(r.DestMsgID),
		MessageText:          r.MessageText.String,
		MessageKind:          models.MessageKind(r.MessageKind),
		SourceURL:            r.SourceURL.String,
		HomeTeam:             r.Home.String,
		AwayTeam:             r.Away.String,
		Prediction:           prediction,
		Status:               models.Status(r.Status),
		CreatedAt:            fromMillis(r.CreatedAt),
		Note:                 r.Note.String,
	}
	if r.LastCheckedAt.Valid {
		bet.LastCheckedAt = fromMillis(r.LastCheckedAt.Int64)
	}
	return bet, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
