package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/clinical-sim/internal/models"
)

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")

	list, err := s.cases.List(r.Context(), tag)
	if err != nil {
		respondFailure(w, err, "list cases", "tag", tag)
		return
	}

	summaries := make([]models.CaseSummary, 0, len(list))
	for _, c := range list {
		summaries = append(summaries, c.Summary())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cases": summaries,
		"total": len(summaries),
	})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.cases.Get(r.Context(), id)
	if err != nil {
		respondFailure(w, err, "get case", "case_id", id)
		return
	}

	respondJSON(w, http.StatusOK, c.Detail())
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges := s.badges
	if badges == nil {
		badges = []models.Badge{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"badges": badges,
		"total":  len(badges),
	})
}
