package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adaptive-test-service/internal/app"
	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

const testSecret = "test-secret-with-enough-length"

type testServer struct {
	*httptest.Server
	auth   *Authenticator
	sink   *memory.AttemptSink
	access *memory.PlanAccess
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sink := memory.NewAttemptSink()
	access := memory.NewPlanAccess()
	service := app.NewSessionService(app.Dependencies{
		Sessions: memory.NewSessionStore(),
		Tests:    memory.NewTestRepository(memory.NewStaticTestLoader(sampleTests()), time.Minute),
		Access:   access,
		Sink:     sink,
		Backups:  memory.NewBackupStore(),
	}, app.Config{})
	auth := NewAuthenticator(testSecret)
	srv := httptest.NewServer(NewRouter(RouterConfig{Service: service, Auth: auth, History: sink}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, auth: auth, sink: sink, access: access}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.auth.IssueToken(userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (s *testServer) startSession(t *testing.T, token, testID string) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/sessions", token, map[string]string{"testId": testID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session: status %d body %s", resp.StatusCode, body)
	}
	var state stateView
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state.Session.SessionID
}

func TestWebSocketAnswerFlow(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "u1")
	sessionID := srv.startSession(t, token, "sat-1")

	u := "ws" + srv.URL[len("http"):] + "/ws?sessionId=" + sessionID + "&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current state first.
	msgType, payload := readNext(conn, t, "state")
	if msgType != "state" || payload == nil {
		t.Fatalf("expected initial state, got %s", msgType)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"index": 0, "answer": "4"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	ack := readUntil(conn, t, "ack")
	if ack["accepted"] != true || ack["event"] != "answer" {
		t.Fatalf("expected accepted answer ack, got %v", ack)
	}

	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	report := readUntil(conn, t, "report")
	if report["score"] != float64(1) || report["maxScore"] != float64(2) {
		t.Fatalf("unexpected report %v", report)
	}
}

func TestWebSocketRejectsUnknownEvent(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "u1")
	sessionID := srv.startSession(t, token, "sat-1")

	u := "ws" + srv.URL[len("http"):] + "/ws?sessionId=" + sessionID + "&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "state")

	if err := conn.WriteJSON(map[string]any{"type": "teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readUntil(conn, t, "error"); msg["message"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestWebSocketRequiresOwnSession(t *testing.T) {
	srv := newTestServer(t)
	sessionID := srv.startSession(t, srv.token(t, "u1"), "sat-1")

	u := "ws" + srv.URL[len("http"):] + "/ws?sessionId=" + sessionID + "&token=" + srv.token(t, "u2")
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for another user's session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

// readUntil skips state pushes (the clock ticks every second) until a message of type want.
func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == want {
			return payload
		}
	}
	t.Fatalf("no %s message received", want)
	return nil
}

func sampleTests() map[string]domain.TestDefinition {
	module := domain.Module{
		Number:          1,
		Subject:         "Math",
		Difficulty:      domain.DifficultyMedium,
		DurationSeconds: 600,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionMCQ, Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: domain.TextAnswer("4"), Points: 1},
			{ID: "q2", Type: domain.QuestionNumeric, Prompt: "What is 3 * 3?", CorrectAnswer: domain.TextAnswer("9"), Points: 1},
		},
	}
	return map[string]domain.TestDefinition{
		"sat-1":   {ID: "sat-1", Title: "Practice", Modules: []domain.Module{module}},
		"premium": {ID: "premium", Title: "Full length", RequiredPlan: "pro", Modules: []domain.Module{module}},
	}
}
