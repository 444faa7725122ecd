package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/models"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/store"
)

// BetsHandler handles HTTP requests for tracked bets
type BetsHandler struct {
	service *service.TrackingService
	logger  zerolog.Logger
}

// NewBetsHandler creates a new bets HTTP handler
func NewBetsHandler(service *service.TrackingService, logger zerolog.Logger) *BetsHandler {
	return &BetsHandler{
		service: service,
		logger:  logger.With().Str("component", "bets_handler").Logger(),
	}
}

// RegisterRoutes registers HTTP routes with the provided mux
func (h *BetsHandler) RegisterRoutes(mux *http.ServeMux) {
	// GET /api/v1/bets?status=&limit= - List tracked bets
	mux.HandleFunc("/api/v1/bets", h.handleListBets)

	// GET /api/v1/bets/:id - Get one bet
	// POST /api/v1/bets/:id/cancel - Stop tracking a pending bet
	mux.HandleFunc("/api/v1/bets/", h.handleBet)
}

// handleListBets handles GET /api/v1/bets
func (h *BetsHandler) handleListBets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var filter models.BetFilter
	query := r.URL.Query()

	if s := query.Get("status"); s != "" {
		status, err := models.ParseStatus(s)
		if err != nil {
			h.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	if s := query.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			h.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	bets, err := h.service.ListBets(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Str("status", string(filter.Status)).Msg("failed to list bets")
		h.errorResponse(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	responses := make([]*BetResponse, len(bets))
	for i, bet := range bets {
		responses[i] = ToBetResponse(bet)
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"count": len(responses),
		"bets":  responses,
	})
}

// handleBet handles GET /api/v1/bets/:id and POST /api/v1/bets/:id/cancel
func (h *BetsHandler) handleBet(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/bets/")
	parts := strings.Split(path, "/")

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		h.errorResponse(w, http.StatusBadRequest, "invalid bet id")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.getBet(w, r, id)

	case len(parts) == 2 && parts[1] == "cancel":
		if r.Method != http.MethodPost {
			h.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.cancelBet(w, r, id)

	default:
		h.errorResponse(w, http.StatusNotFound, "not found")
	}
}

func (h *BetsHandler) getBet(w http.ResponseWriter, r *http.Request, id int64) {
	bet, err := h.service.GetBet(r.Context(), id)
	if err != nil {
		h.storeError(w, err, id)
		return
	}
	h.jsonResponse(w, http.StatusOK, ToBetResponse(bet))
}

func (h *BetsHandler) cancelBet(w http.ResponseWriter, r *http.Request, id int64) {
	bet, err := h.service.CancelBet(r.Context(), id)
	if err != nil {
		h.storeError(w, err, id)
		return
	}
	h.jsonResponse(w, http.StatusOK, ToBetResponse(bet))
}

// storeError maps store sentinels to status codes
func (h *BetsHandler) storeError(w http.ResponseWriter, err error, id int64) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.errorResponse(w, http.StatusNotFound, "bet not found")
	case errors.Is(err, store.ErrNotPending):
		h.errorResponse(w, http.StatusConflict, "bet is already settled")
	default:
		h.logger.Error().Err(err).Int64("bet_id", id).Msg("bet request failed")
		h.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

// jsonResponse writes a JSON response
func (h *BetsHandler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes a JSON error response
func (h *BetsHandler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}

// BetResponse represents the API response for a tracked bet
type BetResponse struct {
	ID            int64             `json:"id"`
	ChatID        int64             `json:"chat_id"`
	MessageID     int               `json:"message_id"`
	Status        models.Status     `json:"status"`
	Prediction    models.Prediction `json:"prediction"`
	Summary       string            `json:"summary"`
	HomeTeam      string            `json:"home_team,omitempty"`
	AwayTeam      string            `json:"away_team,omitempty"`
	SourceURL     string            `json:"source_url,omitempty"`
	Note          string            `json:"note"`
	CreatedAt     string            `json:"created_at"`
	LastCheckedAt string            `json:"last_checked_at,omitempty"`
}

// ToBetResponse converts a TrackedBet to API response format
func ToBetResponse(bet *models.TrackedBet) *BetResponse {
	resp := &BetResponse{
		ID:         bet.ID,
		ChatID:     bet.DestinationChatID,
		MessageID:  bet.DestinationMessageID,
		Status:     bet.Status,
		Prediction: bet.Prediction,
		Summary:    bet.Prediction.String(),
		HomeTeam:   bet.HomeTeam,
		AwayTeam:   bet.AwayTeam,
		SourceURL:  bet.SourceURL,
		Note:       bet.Note,
		CreatedAt:  bet.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !bet.LastCheckedAt.IsZero() {
		resp.LastCheckedAt = bet.LastCheckedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
