package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/metrics"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/mocks"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/store"
)

// testBetsHandlerSetup is a helper struct to hold test dependencies
type testBetsHandlerSetup struct {
	mux       *http.ServeMux
	mockStore *mocks.MockStore
}

// setupTestBetsHandler wires the handler over a tracking service with a mocked store
func setupTestBetsHandler(t *testing.T) *testBetsHandlerSetup {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)

	tracking := service.NewTrackingService(mockStore, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	mux := http.NewServeMux()
	NewBetsHandler(tracking, zerolog.Nop()).RegisterRoutes(mux)

	return &testBetsHandlerSetup{mux: mux, mockStore: mockStore}
}

func (s *testBetsHandlerSetup) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func testBet(id int64, status models.Status) *models.TrackedBet {
	return &models.TrackedBet{
		ID:                   id,
		DestinationChatID:    -100200,
		DestinationMessageID: 31,
		MessageText:          "Over 9.5 corners",
		MessageKind:          models.MessageKindText,
		HomeTeam:             "Flamengo",
		AwayTeam:             "Vasco",
		Prediction:           models.Over(models.UnitCorners, decimal.RequireFromString("9.5")),
		Status:               status,
		CreatedAt:            time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		Note:                 "Over 9.5 corners",
	}
}

// TestHandleListBets tests listing with a status filter and a limit
func TestHandleListBets(t *testing.T) {
	setup := setupTestBetsHandler(t)

	setup.mockStore.EXPECT().
		List(gomock.Any(), models.BetFilter{Status: models.StatusPending, Limit: 5}).
		Return([]*models.TrackedBet{testBet(2, models.StatusPending), testBet(1, models.StatusPending)}, nil)

	rec := setup.do(http.MethodGet, "/api/v1/bets?status=pending&limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Count int            `json:"count"`
		Bets  []*BetResponse `json:"bets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, int64(2), body.Bets[0].ID)
	assert.Equal(t, "over 9.5 corners", body.Bets[0].Summary)
	assert.True(t, models.Over(models.UnitCorners, decimal.RequireFromString("9.5")).Equal(body.Bets[0].Prediction))
	assert.Empty(t, body.Bets[0].LastCheckedAt)
}

// TestHandleListBets_BadRequest tests query validation
func TestHandleListBets_BadRequest(t *testing.T) {
	setup := setupTestBetsHandler(t)

	tests := []struct {
		name   string
		method string
		target string
		code   int
	}{
		{"Unknown status", http.MethodGet, "/api/v1/bets?status=won", http.StatusBadRequest},
		{"Negative limit", http.MethodGet, "/api/v1/bets?limit=-1", http.StatusBadRequest},
		{"Non numeric limit", http.MethodGet, "/api/v1/bets?limit=ten", http.StatusBadRequest},
		{"Wrong method", http.MethodPost, "/api/v1/bets", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := setup.do(tt.method, tt.target)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

// TestHandleListBets_StoreFailure tests internal errors
func TestHandleListBets_StoreFailure(t *testing.T) {
	setup := setupTestBetsHandler(t)
	setup.mockStore.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	rec := setup.do(http.MethodGet, "/api/v1/bets")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestHandleGetBet tests single bet lookup
func TestHandleGetBet(t *testing.T) {
	setup := setupTestBetsHandler(t)

	bet := testBet(7, models.StatusGreen)
	bet.LastCheckedAt = time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	setup.mockStore.EXPECT().Get(gomock.Any(), int64(7)).Return(bet, nil)
	setup.mockStore.EXPECT().Get(gomock.Any(), int64(8)).Return(nil, store.ErrNotFound)

	rec := setup.do(http.MethodGet, "/api/v1/bets/7")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusGreen, resp.Status)
	assert.Equal(t, "Flamengo", resp.HomeTeam)
	assert.Equal(t, "2026-03-01T18:00:00Z", resp.CreatedAt)
	assert.Equal(t, "2026-03-01T21:00:00Z", resp.LastCheckedAt)

	assert.Equal(t, http.StatusNotFound, setup.do(http.MethodGet, "/api/v1/bets/8").Code)
	assert.Equal(t, http.StatusBadRequest, setup.do(http.MethodGet, "/api/v1/bets/abc").Code)
	assert.Equal(t, http.StatusNotFound, setup.do(http.MethodGet, "/api/v1/bets/7/settle").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, setup.do(http.MethodDelete, "/api/v1/bets/7").Code)
}

// TestHandleCancelBet tests external cancellation
func TestHandleCancelBet(t *testing.T) {
	setup := setupTestBetsHandler(t)

	gomock.InOrder(
		setup.mockStore.EXPECT().MarkSettled(gomock.Any(), int64(3), models.StatusCancelled, gomock.Any()).Return(nil),
		setup.mockStore.EXPECT().Get(gomock.Any(), int64(3)).Return(testBet(3, models.StatusCancelled), nil),
	)

	rec := setup.do(http.MethodPost, "/api/v1/bets/3/cancel")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp BetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusCancelled, resp.Status)
}

// TestHandleCancelBet_Errors tests the status codes of failed cancellations
func TestHandleCancelBet_Errors(t *testing.T) {
	setup := setupTestBetsHandler(t)

	setup.mockStore.EXPECT().MarkSettled(gomock.Any(), int64(4), models.StatusCancelled, gomock.Any()).Return(store.ErrNotPending)
	setup.mockStore.EXPECT().MarkSettled(gomock.Any(), int64(5), models.StatusCancelled, gomock.Any()).Return(store.ErrNotFound)
	setup.mockStore.EXPECT().MarkSettled(gomock.Any(), int64(6), models.StatusCancelled, gomock.Any()).Return(errors.New("database is locked"))

	assert.Equal(t, http.StatusConflict, setup.do(http.MethodPost, "/api/v1/bets/4/cancel").Code)
	assert.Equal(t, http.StatusNotFound, setup.do(http.MethodPost, "/api/v1/bets/5/cancel").Code)
	assert.Equal(t, http.StatusInternalServerError, setup.do(http.MethodPost, "/api/v1/bets/6/cancel").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, setup.do(http.MethodGet, "/api/v1/bets/4/cancel").Code)
}
