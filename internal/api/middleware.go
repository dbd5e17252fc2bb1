package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// UserIDHeader carries the identity established by the upstream auth proxy
const UserIDHeader = "X-User-ID"

// RequireUser rejects requests without a user identity. Browsers cannot set
// headers on websocket upgrades, so the user_id query parameter is accepted too.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
		}

		if userID == "" {
			slog.Warn("request without user identity", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing "+UserIDHeader+" header")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID)))
	})
}
