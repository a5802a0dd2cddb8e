package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"adaptive-test-service/internal/app"
	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AttemptHistory lists completed attempts for a user.
type AttemptHistory interface {
	AttemptsForUser(ctx context.Context, userID string) ([]domain.AttemptSubmission, error)
}

type RouterConfig struct {
	Service *app.SessionService
	Auth    *Authenticator
	History AttemptHistory
	Logger  *logger.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	sessions := NewSessionHandler(cfg.Service, cfg.History, log)
	ws := NewWSHandler(cfg.Service, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Service.Offline() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("degraded"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Get("/ws", ws.ServeWS)
		r.Get("/attempts", sessions.ListAttempts)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessions.Start)
			r.Post("/resume", sessions.Resume)
			r.Get("/{id}", sessions.Get)
			r.Get("/{id}/report", sessions.Report)
			r.Post("/{id}/events", sessions.Dispatch)
			r.Delete("/{id}", sessions.Close)
		})
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrTestNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCorruptBackup), errors.Is(err, domain.ErrSessionCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidDefinition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
