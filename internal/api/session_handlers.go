package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/clinical-sim/internal/models"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.CaseID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "case_id is required")
		return
	}

	view, err := s.sessions.Create(r.Context(), req.CaseID, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "create session", "case_id", req.CaseID)
		return
	}

	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List(r.Context(), UserFromContext(r.Context()))

	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := s.sessions.Get(r.Context(), id, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "get session", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.sessions.Delete(r.Context(), id, UserFromContext(r.Context())); err != nil {
		respondFailure(w, err, "delete session", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session deleted",
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.StartSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !req.Mode.Valid() {
		respondError(w, http.StatusBadRequest, "validation_error", "mode must be practice or evaluation")
		return
	}

	view, err := s.sessions.Start(r.Context(), id, UserFromContext(r.Context()), req.Mode)
	if err != nil {
		respondFailure(w, err, "start session", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleToggleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := s.sessions.Toggle(r.Context(), id, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "toggle session", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := s.sessions.Reset(r.Context(), id, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "reset session", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hint, err := s.sessions.UseHint(r.Context(), id, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "use hint", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, models.HintResponse{Hint: hint})
}

func (s *Server) handleApplyTreatment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.ApplyTreatmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.TreatmentID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "treatment_id is required")
		return
	}

	fb, err := s.sessions.ApplyTreatment(r.Context(), id, UserFromContext(r.Context()), req.TreatmentID)
	if err != nil {
		respondFailure(w, err, "apply treatment", "session_id", id, "treatment_id", req.TreatmentID)
		return
	}

	respondJSON(w, http.StatusOK, fb)
}

func (s *Server) handleListTreatments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := s.sessions.Treatments(r.Context(), id, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "list treatments", "session_id", id)
		return
	}
	if entries == nil {
		entries = []models.TreatmentFeedback{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"treatments": entries,
		"total":      len(entries),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	history, err := s.sessions.History(r.Context(), id, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "get history", "session_id", id)
		return
	}
	if history == nil {
		history = []models.HistoryEntry{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"total":   len(history),
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	board, err := s.sessions.Challenge(r.Context(), id, UserFromContext(r.Context()))
	if err != nil {
		respondFailure(w, err, "get challenge", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, board)
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.DiagnoseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.OptionID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "option_id is required")
		return
	}

	result, err := s.sessions.Diagnose(r.Context(), id, UserFromContext(r.Context()), req.OptionID)
	if err != nil {
		respondFailure(w, err, "submit diagnosis", "session_id", id)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
