package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"kalshorb/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "kalshorb.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestBuildServesAndPersists(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := Build(context.Background(), testConfig(t), logger, Options{Offline: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	body := `{"user_id":"u1","session_id":"s1","message":"How do I use the Kelly criterion?","include_context":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/kalshorb", strings.NewReader(body))
	rr := httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/s1/messages", nil)
	rr = httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var transcript struct {
		Data []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &transcript); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(transcript.Data) != 2 || transcript.Data[0].Role != "user" || transcript.Data[1].Role != "assistant" {
		t.Fatalf("unexpected transcript: %+v", transcript.Data)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions?user_id=u1", nil)
	rr = httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, req)
	if !strings.Contains(rr.Body.String(), "How do I use the Kelly criterion?") {
		t.Fatalf("expected session title in %s", rr.Body.String())
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBuildStoreOverride(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := Build(context.Background(), testConfig(t), logger, Options{Offline: true, Store: "none"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	sessions, err := a.Service.Sessions(context.Background(), "u1", 0)
	if err != nil || len(sessions) != 0 {
		t.Fatalf("Sessions = %v, %v", sessions, err)
	}
}

func TestBuildRejectsUnknownStore(t *testing.T) {
	if _, err := Build(context.Background(), testConfig(t), nil, Options{Store: "mysql"}); err == nil {
		t.Fatalf("expected error for unknown store driver")
	}
}

func TestConfigMapping(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "key"
	cfg.CORS.AllowedOrigins = []string{"https://a.example"}

	if got := LLMConfig(cfg); got.APIKey != "key" || got.Provider != "openrouter" || got.Referer == "" {
		t.Fatalf("unexpected llm config: %+v", got)
	}
	if got := CORSOptions(cfg); got.AllowedOrigins[0] != "https://a.example" || got.MaxAge != 86400 {
		t.Fatalf("unexpected cors options: %+v", got)
	}
	if got := StoreConfig(cfg); got.Driver != "auto" {
		t.Fatalf("unexpected store config: %+v", got)
	}
}
