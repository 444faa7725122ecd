package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
)

// testStoreSetup is a helper struct to hold test dependencies
type testStoreSetup struct {
	store *SQLStore
	path  string
	ctx   context.Context
}

// setupTestStore opens a sqlite store in a temp dir
func setupTestStore(t *testing.T) *testStoreSetup {
	path := filepath.Join(t.TempDir(), "bets.db")
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverSQLite, DSN: path}, zerolog.Nop())
	require.NoError(t, err)

	return &testStoreSetup{store: s, path: path, ctx: ctx}
}

// reopen closes the store and opens the same file again, as a restarted process would
func (s *testStoreSetup) reopen(t *testing.T) {
	require.NoError(t, s.store.Close())

	reopened, err := Open(s.ctx, Config{Driver: DriverSQLite, DSN: s.path}, zerolog.Nop())
	require.NoError(t, err)
	s.store = reopened
}

func (s *testStoreSetup) cleanup() {
	s.store.Close()
}

func newBet(msgID int) *models.TrackedBet {
	return &models.TrackedBet{
		DestinationChatID:    -100123,
		DestinationMessageID: msgID,
		MessageText:          "Jogo: Flamengo x Vasco\nOver 9.5 corners",
		MessageKind:          models.MessageKindText,
		SourceURL:            "https://example.com/match/1",
		HomeTeam:             "Flamengo",
		AwayTeam:             "Vasco",
		Prediction:           models.Over(models.UnitCorners, decimal.RequireFromString("9.5")),
		Note:                 "Jogo: Flamengo x Vasco Over 9.5 corners",
	}
}

// TestInsert_Success tests insert and read back
func TestInsert_Success(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	bet := newBet(10)
	id, err := setup.store.Insert(setup.ctx, bet)

	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, bet.ID)

	got, err := setup.store.Get(setup.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, bet.DestinationChatID, got.DestinationChatID)
	assert.Equal(t, 10, got.DestinationMessageID)
	assert.Equal(t, bet.MessageText, got.MessageText)
	assert.Equal(t, models.MessageKindText, got.MessageKind)
	assert.Equal(t, "Flamengo", got.HomeTeam)
	assert.Equal(t, "Vasco", got.AwayTeam)
	assert.True(t, bet.Prediction.Equal(got.Prediction))
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.LastCheckedAt.IsZero())
}

// TestInsert_OptionalFieldsAbsent tests that empty optional fields stay empty
func TestInsert_OptionalFieldsAbsent(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	id, err := setup.store.Insert(setup.ctx, &models.TrackedBet{
		DestinationChatID:    1,
		DestinationMessageID: 2,
		Prediction:           models.Unknown(),
	})
	require.NoError(t, err)

	got, err := setup.store.Get(setup.ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.SourceURL)
	assert.False(t, got.HasTeams())
	assert.True(t, got.Prediction.IsUnknown())
}

// TestInsert_Duplicate tests the unique destination message
func TestInsert_Duplicate(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	_, err := setup.store.Insert(setup.ctx, newBet(10))
	require.NoError(t, err)

	_, err = setup.store.Insert(setup.ctx, newBet(10))

	assert.ErrorIs(t, err, ErrDuplicateBet)
}

// TestListPending tests that only pending bets are listed in insertion order
func TestListPending(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	var ids []int64
	for i := 1; i <= 3; i++ {
		id, err := setup.store.Insert(setup.ctx, newBet(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, setup.store.MarkSettled(setup.ctx, ids[1], models.StatusGreen, "corners 5-5"))

	pending, err := setup.store.ListPending(setup.ctx)

	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)
}

// TestListPending_SkipsUnreadablePrediction tests that a corrupted row does not hide the rest
func TestListPending_SkipsUnreadablePrediction(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	_, err := setup.store.Insert(setup.ctx, newBet(1))
	require.NoError(t, err)
	_, err = setup.store.db.ExecContext(setup.ctx,
		`INSERT INTO tracked_bets (dest_chat_id, dest_msg_id, message_kind, prediction, status, created_at)
		 VALUES (1, 99, 'text', '{''type'': ''over''}', 'pending', 0)`)
	require.NoError(t, err)

	pending, err := setup.store.ListPending(setup.ctx)

	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// TestMarkSettled tests the one-way status transition
func TestMarkSettled(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	id, err := setup.store.Insert(setup.ctx, newBet(1))
	require.NoError(t, err)

	require.NoError(t, setup.store.MarkSettled(setup.ctx, id, models.StatusRed, "corners 4-5"))

	got, err := setup.store.Get(setup.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRed, got.Status)
	assert.Equal(t, "corners 4-5", got.Note)
	assert.False(t, got.LastCheckedAt.IsZero())

	err = setup.store.MarkSettled(setup.ctx, id, models.StatusGreen, "late")
	assert.ErrorIs(t, err, ErrNotPending)

	got, err = setup.store.Get(setup.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRed, got.Status)
}

// TestMarkSettled_Errors tests invalid targets
func TestMarkSettled_Errors(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	err := setup.store.MarkSettled(setup.ctx, 404, models.StatusGreen, "")
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := setup.store.Insert(setup.ctx, newBet(1))
	require.NoError(t, err)

	err = setup.store.MarkSettled(setup.ctx, id, models.StatusPending, "")
	assert.Error(t, err)
}

// TestTouch_Monotonic tests that last_checked_at never moves backwards
func TestTouch_Monotonic(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	id, err := setup.store.Insert(setup.ctx, newBet(1))
	require.NoError(t, err)

	later := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	setup.store.now = func() time.Time { return later }
	require.NoError(t, setup.store.Touch(setup.ctx, id))

	setup.store.now = func() time.Time { return later.Add(-time.Hour) }
	require.NoError(t, setup.store.Touch(setup.ctx, id))

	got, err := setup.store.Get(setup.ctx, id)
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastCheckedAt))
	assert.Equal(t, models.StatusPending, got.Status)

	setup.store.now = func() time.Time { return later.Add(time.Minute) }
	require.NoError(t, setup.store.Touch(setup.ctx, id))

	got, err = setup.store.Get(setup.ctx, id)
	require.NoError(t, err)
	assert.True(t, later.Add(time.Minute).Equal(got.LastCheckedAt))
}

// TestTouch_NotFound tests touching a missing bet
func TestTouch_NotFound(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	assert.ErrorIs(t, setup.store.Touch(setup.ctx, 7), ErrNotFound)
}

// TestGet_NotFound tests reading a missing bet
func TestGet_NotFound(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	got, err := setup.store.Get(setup.ctx, 1)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
}

// TestList_FilterAndLimit tests listing newest first with a status filter
func TestList_FilterAndLimit(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	var ids []int64
	for i := 1; i <= 4; i++ {
		id, err := setup.store.Insert(setup.ctx, newBet(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, setup.store.MarkSettled(setup.ctx, ids[0], models.StatusCancelled, "cancelled"))

	all, err := setup.store.List(setup.ctx, models.BetFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID)

	limited, err := setup.store.List(setup.ctx, models.BetFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	cancelled, err := setup.store.List(setup.ctx, models.BetFilter{Status: models.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, ids[0], cancelled[0].ID)
}

// TestStore_SurvivesRestart tests that pending and settled state is durable
func TestStore_SurvivesRestart(t *testing.T) {
	setup := setupTestStore(t)
	defer setup.cleanup()

	pendingID, err := setup.store.Insert(setup.ctx, newBet(1))
	require.NoError(t, err)
	settledID, err := setup.store.Insert(setup.ctx, newBet(2))
	require.NoError(t, err)
	require.NoError(t, setup.store.MarkSettled(setup.ctx, settledID, models.StatusGreen, "corners 6-4"))

	setup.reopen(t)

	pending, err := setup.store.ListPending(setup.ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pendingID, pending[0].ID)
	assert.True(t, newBet(1).Prediction.Equal(pending[0].Prediction))

	settled, err := setup.store.Get(setup.ctx, settledID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGreen, settled.Status)

	_, err = setup.store.Insert(setup.ctx, newBet(2))
	assert.ErrorIs(t, err, ErrDuplicateBet)
}

// TestPing tests the connection check
func TestPing(t *testing.T) {
	setup := setupTestStore(t)

	assert.NoError(t, setup.store.Ping(setup.ctx))

	setup.cleanup()
	assert.Error(t, setup.store.Ping(setup.ctx))
}

// TestOpen_InvalidConfig tests configuration errors
func TestOpen_InvalidConfig(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{Driver: "mysql", DSN: "x"}, zerolog.Nop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")

	_, err = Open(ctx, Config{Driver: DriverSQLite}, zerolog.Nop())
	assert.Error(t, err)
}

// TestDataSourceName tests sqlite pragmas are added once
func TestDataSourceName(t *testing.T) {
	dsn, err := dataSourceName(Config{Driver: DriverSQLite, DSN: "bets.db"})
	require.NoError(t, err)
	assert.Equal(t, "bets.db?"+sqlitePragmas, dsn)

	dsn, err = dataSourceName(Config{Driver: DriverSQLite, DSN: "file:bets.db?mode=rwc"})
	require.NoError(t, err)
	assert.Equal(t, "file:bets.db?mode=rwc&"+sqlitePragmas, dsn)

	dsn, err = dataSourceName(Config{Driver: DriverSQLite, DSN: "bets.db?_pragma=foreign_keys(1)"})
	require.NoError(t, err)
	assert.Equal(t, "bets.db?_pragma=foreign_keys(1)", dsn)
}
