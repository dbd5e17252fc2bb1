package api

import (
	"net/http"
	"strconv"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/storage"
)

func (s *Server) handleUserBadges(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())

	awards, err := s.repo.ListAwards(r.Context(), userID)
	if err != nil {
		respondFailure(w, err, "list badges", "user_id", userID)
		return
	}
	if awards == nil {
		awards = []models.UserBadgeAward{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"badges": awards,
		"total":  len(awards),
	})
}

func (s *Server) handleUserOutcomes(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())

	filters := storage.OutcomeFilters{
		CaseID: r.URL.Query().Get("case_id"),
		Status: models.SessionStatus(r.URL.Query().Get("status")),
		Limit:  50, // default
		Offset: 0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	outcomes, err := s.repo.ListOutcomes(r.Context(), userID, filters)
	if err != nil {
		respondFailure(w, err, "list outcomes", "user_id", userID)
		return
	}
	if outcomes == nil {
		outcomes = []models.SessionOutcome{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"outcomes": outcomes,
		"total":    len(outcomes),
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())

	stats, err := s.repo.UserStats(r.Context(), userID)
	if err != nil {
		respondFailure(w, err, "get stats", "user_id", userID)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
