package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"kalshorb/pkg/kalshorb"
)

func doRequest(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fallbackRouter serves the advisor with no store and no language model.
func fallbackRouter() http.Handler {
	logger := quietLogger()
	return NewRouter(kalshorb.New(kalshorb.Options{Logger: logger}), Options{Logger: logger})
}

type advisorResponse struct {
	Data struct {
		Message          string `json:"message"`
		Confidence       int    `json:"confidence"`
		SessionID        string `json:"session_id"`
		SuggestedActions []struct {
			Label  string `json:"label"`
			Action string `json:"action"`
		} `json:"suggested_actions"`
	} `json:"data"`
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rr := doRequest(fallbackRouter(), http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := decodeBody[map[string]string](t, rr); got["status"] != "ok" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestChatFallbackEndToEnd(t *testing.T) {
	t.Parallel()

	body := `{"user_id":"u1","session_id":"s1","message":"What is a prediction market?","action":"chat","include_context":false}`
	for _, path := range []string{"/api/kalshorb", "/"} {
		rr := doRequest(fallbackRouter(), http.MethodPost, path, strings.NewReader(body))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
		resp := decodeBody[advisorResponse](t, rr)
		if !strings.Contains(resp.Data.Message, "Prediction markets are financial exchanges") {
			t.Fatalf("unexpected message: %q", resp.Data.Message)
		}
		if resp.Data.Confidence != 92 {
			t.Fatalf("confidence = %d, want 92", resp.Data.Confidence)
		}
		actions := resp.Data.SuggestedActions
		if len(actions) != 2 || actions[0].Action != "learn_strategies" || actions[1].Action != "navigate" {
			t.Fatalf("unexpected actions: %+v", actions)
		}
		if resp.Data.SessionID != "s1" {
			t.Fatalf("session_id = %q", resp.Data.SessionID)
		}
	}
}

func TestQuickActionFallbackEndToEnd(t *testing.T) {
	t.Parallel()

	rr := doRequest(fallbackRouter(), http.MethodPost, "/api/kalshorb", strings.NewReader(`{"user_id":"u1","action":"quick_action"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[advisorResponse](t, rr)
	if resp.Data.Confidence != 85 || len(resp.Data.SuggestedActions) != 3 {
		t.Fatalf("unexpected quick action reply: %+v", resp.Data)
	}
}

func TestAdvisorErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "missing user", body: `{"message":"hi","session_id":"s"}`, message: "User ID is required"},
		{name: "missing message", body: `{"user_id":"u"}`, message: "Message and session ID are required"},
		{name: "unknown action", body: `{"user_id":"u","action":"dance"}`, message: "Unknown action: dance"},
		{name: "malformed json", body: `{"user_id":`, message: "unexpected EOF"},
		{name: "empty body", body: ``, message: "request body is empty"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(fallbackRouter(), http.MethodPost, "/api/kalshorb", strings.NewReader(tc.body))
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rr.Code)
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Error.Code != "KALSHORB_ERROR" || resp.Error.Message != tc.message {
				t.Fatalf("unexpected error: %+v", resp.Error)
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	t.Parallel()

	router := fallbackRouter()

	// Bare OPTIONS without preflight headers.
	rr := doRequest(router, http.MethodOptions, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	header := rr.Header()
	if header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing allow-origin: %v", header)
	}
	if header.Get("Access-Control-Allow-Headers") != "authorization, x-client-info, apikey, content-type" {
		t.Fatalf("unexpected allow-headers: %q", header.Get("Access-Control-Allow-Headers"))
	}
	if header.Get("Access-Control-Max-Age") != "86400" {
		t.Fatalf("unexpected max-age: %q", header.Get("Access-Control-Max-Age"))
	}
	if header.Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("credentials must not be allowed")
	}

	// Browser preflight handled by the cors middleware.
	req := httptest.NewRequest(http.MethodOptions, "/api/kalshorb", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type, apikey")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing allow-origin on preflight: %v", rr.Header())
	}
}

func TestPreflightRestrictedOrigins(t *testing.T) {
	t.Parallel()

	router := NewRouter(kalshorb.New(kalshorb.Options{Logger: quietLogger()}), Options{
		Logger: quietLogger(),
		CORS:   CORSOptions{AllowedOrigins: []string{"https://app.example"}},
	})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

type recordingAdvisor struct {
	mu        sync.Mutex
	userID    string
	sessionID string
	limit     int
	request   kalshorb.InboundRequest
	err       error
}

func (a *recordingAdvisor) Handle(_ context.Context, req kalshorb.InboundRequest) (*kalshorb.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.request = req
	return &kalshorb.Response{Message: "ok", Confidence: 80}, a.err
}

func (a *recordingAdvisor) Sessions(_ context.Context, userID string, limit int) ([]kalshorb.SessionRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userID, a.limit = userID, limit
	if a.err != nil {
		return nil, a.err
	}
	return []kalshorb.SessionRecord{{ID: "s1", UserID: userID, Title: "first", CreatedAt: time.Unix(0, 0).UTC()}}, nil
}

func (a *recordingAdvisor) Transcript(_ context.Context, sessionID string, limit int) ([]kalshorb.MessageRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID, a.limit = sessionID, limit
	if a.err != nil {
		return nil, a.err
	}
	return []kalshorb.MessageRecord{{SessionID: sessionID, Role: "user", Content: "hello"}}, nil
}

func TestIncludeContextDefaultsTrue(t *testing.T) {
	t.Parallel()

	advisor := &recordingAdvisor{}
	router := NewRouter(advisor, Options{Logger: quietLogger()})

	doRequest(router, http.MethodPost, "/api/kalshorb", strings.NewReader(`{"user_id":"u","session_id":"s","message":"m","extra":1}`))
	if !advisor.request.IncludeContext || advisor.request.UserID != "u" {
		t.Fatalf("unexpected request: %+v", advisor.request)
	}

	doRequest(router, http.MethodPost, "/api/kalshorb", strings.NewReader(`{"user_id":"u","include_context":false}`))
	if advisor.request.IncludeContext {
		t.Fatalf("include_context=false ignored")
	}
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()

	advisor := &recordingAdvisor{}
	router := NewRouter(advisor, Options{Logger: quietLogger()})

	rr := doRequest(router, http.MethodGet, "/api/sessions?user_id=u1&limit=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if advisor.userID != "u1" || advisor.limit != 5 {
		t.Fatalf("unexpected call: %q %d", advisor.userID, advisor.limit)
	}
	sessions := decodeBody[struct {
		Data []kalshorb.SessionRecord `json:"data"`
	}](t, rr)
	if len(sessions.Data) != 1 || sessions.Data[0].Title != "first" {
		t.Fatalf("unexpected sessions: %+v", sessions.Data)
	}

	rr = doRequest(router, http.MethodGet, "/api/sessions/s9/messages", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if advisor.sessionID != "s9" || advisor.limit != 0 {
		t.Fatalf("unexpected call: %q %d", advisor.sessionID, advisor.limit)
	}

	rr = doRequest(router, http.MethodGet, "/api/sessions?user_id=u1&limit=many", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestSessionEndpointStorageError(t *testing.T) {
	t.Parallel()

	advisor := &recordingAdvisor{err: kalshorb.WrapError(kalshorb.ErrCodeStorage, "list sessions", io.ErrUnexpectedEOF)}
	router := NewRouter(advisor, Options{Logger: quietLogger()})

	rr := doRequest(router, http.MethodGet, "/api/sessions?user_id=u1", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	resp := decodeBody[ErrorResponse](t, rr)
	if resp.Error.Code != kalshorb.PublicErrorCode || !strings.Contains(resp.Error.Message, "list sessions") {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}
