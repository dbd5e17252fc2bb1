package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/clinical-sim/internal/cases"
	"github.com/terra-clan/clinical-sim/internal/config"
	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/presenter"
	"github.com/terra-clan/clinical-sim/internal/simulation"
	"github.com/terra-clan/clinical-sim/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	sessions simulation.Manager
	cases    cases.Provider
	badges   []models.Badge
	repo     storage.Repository
	hub      *presenter.Hub
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	sessions simulation.Manager,
	provider cases.Provider,
	badges []models.Badge,
	repo storage.Repository,
	hub *presenter.Hub,
) *Server {
	s := &Server{
		config:   cfg,
		sessions: sessions,
		cases:    provider,
		badges:   badges,
		repo:     repo,
		hub:      hub,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", UserIDHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	timeout := middleware.Timeout(60 * time.Second)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireUser)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/cases", s.handleListCases)
			r.Get("/cases/{id}", s.handleGetCase)
			r.Get("/badges", s.handleListBadges)

			r.Get("/users/me/badges", s.handleUserBadges)
			r.Get("/users/me/outcomes", s.handleUserOutcomes)
			r.Get("/users/me/stats", s.handleUserStats)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(timeout).Get("/", s.handleListSessions)
			r.With(timeout).Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				// The stream outlives the request timeout
				r.Get("/stream", s.handleSessionStream)

				r.Group(func(r chi.Router) {
					r.Use(timeout)

					r.Get("/", s.handleGetSession)
					r.Delete("/", s.handleDeleteSession)
					r.Post("/start", s.handleStartSession)
					r.Post("/toggle", s.handleToggleSession)
					r.Post("/reset", s.handleResetSession)
					r.Post("/hint", s.handleHint)
					r.Get("/treatments", s.handleListTreatments)
					r.Post("/treatments", s.handleApplyTreatment)
					r.Get("/history", s.handleHistory)
					r.Get("/challenge", s.handleChallenge)
					r.Post("/diagnosis", s.handleDiagnose)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"user_id", r.Header.Get(UserIDHeader),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
