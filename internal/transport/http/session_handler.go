package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"adaptive-test-service/internal/app"
	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/engine"
	"adaptive-test-service/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SessionHandler serves the REST side of test taking.
type SessionHandler struct {
	service *app.SessionService
	history AttemptHistory
	log     *logger.Logger
}

func NewSessionHandler(service *app.SessionService, history AttemptHistory, log *logger.Logger) *SessionHandler {
	return &SessionHandler{service: service, history: history, log: log}
}

// stateView is a snapshot as sent to clients.
type stateView struct {
	engine.Snapshot
	Offline bool `json:"offline"`
}

type eventResult struct {
	Accepted bool      `json:"accepted"`
	State    stateView `json:"state"`
}

func (h *SessionHandler) view(snap engine.Snapshot) stateView {
	return stateView{Snapshot: snap, Offline: h.service.Offline()}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload struct {
		TestID string `json:"testId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.TestID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "testId is required"})
		return
	}
	snap, err := h.service.Start(r.Context(), userID, payload.TestID)
	if err != nil {
		h.fail(w, r, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(snap))
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Resume(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "resume session", err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(snap))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(snap))
}

func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	report, err := h.service.Report(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "session report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *SessionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var ev app.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid event payload"})
		return
	}
	snap, accepted, err := h.service.Dispatch(r.Context(), userID, chi.URLParam(r, "id"), ev)
	if err != nil {
		h.fail(w, r, "dispatch event", err)
		return
	}
	writeJSON(w, http.StatusOK, eventResult{Accepted: accepted, State: h.view(snap)})
}

func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	h.service.Close(r.Context(), userID, chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if h.history == nil {
		writeJSON(w, http.StatusOK, []domain.AttemptSubmission{})
		return
	}
	attempts, err := h.history.AttemptsForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "list attempts", err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *SessionHandler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := UserFromContext(r.Context())
	if err != nil {
		writeError(w, domain.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(op+" failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	if errors.Is(err, domain.ErrCorruptBackup) {
		h.log.Warn(op+" found an unusable backup", "error", err)
	}
	writeError(w, err)
}
