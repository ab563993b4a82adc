package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Vodeneev/dropalerts/internal/ledger"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/pkg/storage"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
	defaultRecentSince = 24 * time.Hour
)

type recentResponse struct {
	Drops []*models.Drop `json:"drops"`
	Count int            `json:"count"`
	Since time.Time      `json:"since"`
}

// handleRecentDrops serves GET /api/drops/recent?kind=&since=&limit=.
func (s *Server) handleRecentDrops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind, ok := kindParam(w, q.Get("kind"))
	if !ok {
		return
	}

	since := s.now().Add(-defaultRecentSince)
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}

	limit := defaultRecentLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	drops, err := s.deps.Drops.RecentByKind(r.Context(), kind, since, limit)
	if err != nil {
		s.log.Error("Failed to list recent drops", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list drops")
		return
	}
	if drops == nil {
		drops = []*models.Drop{}
	}
	respondJSON(w, http.StatusOK, recentResponse{Drops: drops, Count: len(drops), Since: since.UTC()})
}

// handleGetDrop serves GET /api/drops/{id}.
func (s *Server) handleGetDrop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.deps.Drops.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "drop not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to load drop", "drop_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load drop")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type countResponse struct {
	Kind  models.Kind     `json:"kind,omitempty"`
	Tier  models.TierKind `json:"tier"`
	Date  string          `json:"date"`
	Count int             `json:"count"`
}

// handleCountToday serves GET /api/drops/count?kind=&tier=&tz=.
func (s *Server) handleCountToday(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind, ok := kindParam(w, q.Get("kind"))
	if !ok {
		return
	}

	tier := models.TierFree
	switch q.Get("tier") {
	case "", string(models.TierFree):
	case string(models.TierPremium):
		tier = models.TierPremium
	default:
		respondError(w, http.StatusBadRequest, "tier must be free or premium")
		return
	}

	loc := s.deps.Location
	if tz := q.Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			respondError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
		loc = l
	}

	now := s.now()
	n, err := s.deps.Drops.CountToday(r.Context(), kind, tier, now, loc)
	if err != nil {
		s.log.Error("Failed to count drops", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to count drops")
		return
	}
	respondJSON(w, http.StatusOK, countResponse{Kind: kind, Tier: tier, Date: models.DateKey(now, loc), Count: n})
}

// handleUserStats serves GET /api/users/{id}/stats?days=.
func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var window time.Duration
	if v := r.URL.Query().Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			respondError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}

	stats, err := s.deps.Ledger.Aggregate(r.Context(), userID, window)
	if err != nil {
		s.log.Error("Failed to aggregate bets", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to aggregate bets")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type outcomeRequest struct {
	Status       string   `json:"status"`
	ActualProfit *float64 `json:"actual_profit,omitempty"`
}

// handleBetOutcome serves POST /api/bets/{id}/outcome.
func (s *Server) handleBetOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req outcomeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bet, err := s.deps.Ledger.UpdateOutcome(r.Context(), id, models.BetStatus(req.Status), req.ActualProfit)
	switch {
	case errors.Is(err, ledger.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "bet not found")
		return
	case err != nil:
		s.log.Error("Failed to update bet outcome", "bet_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update bet")
		return
	}
	respondJSON(w, http.StatusOK, bet)
}

// kindParam parses an optional kind filter, writing a 400 on bad input.
func kindParam(w http.ResponseWriter, v string) (models.Kind, bool) {
	if v == "" {
		return "", true
	}
	k, err := models.ParseKind(v)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return k, true
}
