package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"adaptive-test-service/internal/domain"
)

func TestRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	if resp, _ := srv.do(t, http.MethodPost, "/sessions", "", map[string]string{"testId": "sat-1"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	expired, err := srv.auth.IssueToken("u1", -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if resp, _ := srv.do(t, http.MethodPost, "/sessions", expired, map[string]string{"testId": "sat-1"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", resp.StatusCode)
	}

	forged, _ := NewAuthenticator("another-secret").IssueToken("u1", time.Hour)
	if resp, _ := srv.do(t, http.MethodPost, "/sessions", forged, map[string]string{"testId": "sat-1"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", resp.StatusCode)
	}

	if resp, _ := srv.do(t, http.MethodGet, "/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should be public, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycleOverREST(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "u1")

	if resp, _ := srv.do(t, http.MethodPost, "/sessions", token, map[string]string{"testId": "premium"}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without plan, got %d", resp.StatusCode)
	}
	if resp, _ := srv.do(t, http.MethodPost, "/sessions", token, map[string]string{"testId": "nope"}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown test, got %d", resp.StatusCode)
	}

	sessionID := srv.startSession(t, token, "sat-1")

	resp, body := srv.do(t, http.MethodPost, "/sessions/"+sessionID+"/events", token,
		map[string]any{"type": "answer", "index": 1, "answer": "9"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch: status %d body %s", resp.StatusCode, body)
	}
	var result eventResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Accepted || len(result.State.Answers) != 1 {
		t.Fatalf("unexpected event result %+v", result)
	}

	resp, body = srv.do(t, http.MethodPost, "/sessions/"+sessionID+"/events", token,
		map[string]any{"type": "answer", "index": 7, "answer": "1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch out of range: status %d", resp.StatusCode)
	}
	_ = json.Unmarshal(body, &result)
	if result.Accepted {
		t.Fatalf("answer outside the module must be ignored")
	}

	if resp, _ := srv.do(t, http.MethodGet, "/sessions/"+sessionID, srv.token(t, "u2"), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for another user, got %d", resp.StatusCode)
	}

	if resp, _ := srv.do(t, http.MethodPost, "/sessions/"+sessionID+"/events", token, map[string]any{"type": "submit"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}

	resp, body = srv.do(t, http.MethodGet, "/sessions/"+sessionID+"/report", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report: status %d", resp.StatusCode)
	}
	var report domain.AttemptReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Score != 1 || report.MaxScore != 2 || report.Percentage != 50 || report.Grade != "F" {
		t.Fatalf("unexpected report %+v", report)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body = srv.do(t, http.MethodGet, "/attempts", token, nil)
		var attempts []domain.AttemptSubmission
		_ = json.Unmarshal(body, &attempts)
		if resp.StatusCode == http.StatusOK && len(attempts) == 1 {
			if attempts[0].SessionID != sessionID {
				t.Fatalf("unexpected attempt %+v", attempts[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("attempt was not recorded: %s", body)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if resp, _ := srv.do(t, http.MethodDelete, "/sessions/"+sessionID, token, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close: status %d", resp.StatusCode)
	}
	if resp, _ := srv.do(t, http.MethodGet, "/sessions/"+sessionID, token, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected closed session gone, got %d", resp.StatusCode)
	}
}

func TestResumeOverREST(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "u1")

	if resp, _ := srv.do(t, http.MethodPost, "/sessions/resume", token, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with nothing to resume, got %d", resp.StatusCode)
	}

	sessionID := srv.startSession(t, token, "sat-1")
	resp, body := srv.do(t, http.MethodPost, "/sessions/resume", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume: status %d body %s", resp.StatusCode, body)
	}
	var state stateView
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Session.SessionID != sessionID || state.Offline {
		t.Fatalf("unexpected resumed state %+v", state.Session)
	}
}

func TestUnknownEventIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "u1")
	sessionID := srv.startSession(t, token, "sat-1")

	resp, _ := srv.do(t, http.MethodPost, "/sessions/"+sessionID+"/events", token, map[string]any{"type": "teleport"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
