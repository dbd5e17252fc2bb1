package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// Response helpers

type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// statusForKind maps simulation error kinds to HTTP statuses. Unclassified errors are 500.
func statusForKind(kind simerr.Kind) int {
	switch kind {
	case simerr.KindCaseNotFound, simerr.KindSessionNotFound:
		return http.StatusNotFound
	case simerr.KindSessionStateConflict, simerr.KindChallengeAlreadyResolved:
		return http.StatusConflict
	case simerr.KindInvalidCaseData, simerr.KindTreatmentNotApplicableNow:
		return http.StatusUnprocessableEntity
	case simerr.KindUnknownParameter, simerr.KindUnknownTreatment:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure writes a classified error with its kind code, or a generic 500
func respondFailure(w http.ResponseWriter, err error, action string, attrs ...any) {
	kind := simerr.KindOf(err)
	status := statusForKind(kind)

	if status == http.StatusInternalServerError {
		slog.Error("failed to "+action, append([]any{"error", err}, attrs...)...)
		respondError(w, status, "internal_error", "failed to "+action)
		return
	}

	message := err.Error()
	var se *simerr.Error
	if errors.As(err, &se) && se.Message != "" {
		message = se.Message
	}
	respondError(w, status, kind.Code(), message)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
