package mobile

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func setupMobileAdvisor(t *testing.T) *Advisor {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestMobileAdvisorJSONFlows(t *testing.T) {
	a := setupMobileAdvisor(t)

	resp, err := a.HandleJSON(`{"user_id":"u1","session_id":"s1","message":"What is a prediction market?","include_context":false}`)
	if err != nil {
		t.Fatalf("HandleJSON: %v", err)
	}
	var reply map[string]any
	if err := json.Unmarshal([]byte(resp), &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply["confidence"] != float64(92) || reply["session_id"] != "s1" {
		t.Fatalf("unexpected reply: %v", reply)
	}

	sessions, err := a.SessionsJSON("u1", 10)
	if err != nil {
		t.Fatalf("SessionsJSON: %v", err)
	}
	var sessionList []map[string]any
	if err := json.Unmarshal([]byte(sessions), &sessionList); err != nil {
		t.Fatalf("unmarshal sessions: %v", err)
	}
	if len(sessionList) != 1 || sessionList[0]["id"] != "s1" {
		t.Fatalf("unexpected sessions: %v", sessionList)
	}

	transcript, err := a.TranscriptJSON("s1", 0)
	if err != nil {
		t.Fatalf("TranscriptJSON: %v", err)
	}
	var messages []map[string]any
	if err := json.Unmarshal([]byte(transcript), &messages); err != nil {
		t.Fatalf("unmarshal transcript: %v", err)
	}
	if len(messages) != 2 || messages[0]["role"] != "user" || messages[1]["role"] != "assistant" {
		t.Fatalf("unexpected transcript: %v", messages)
	}
}

func TestMobileAdvisorErrors(t *testing.T) {
	a := NewOffline()
	defer a.Close()

	if _, err := a.HandleJSON(`not json`); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := a.HandleJSON(`{"message":"hi"}`); err == nil || err.Error() != "User ID is required" {
		t.Fatalf("expected user id error, got %v", err)
	}
	if _, err := a.SessionsJSON("", 0); err == nil {
		t.Fatalf("expected user id error for sessions")
	}

	resp, err := a.HandleJSON(`{"user_id":"u","action":"quick_action"}`)
	if err != nil || !strings.Contains(resp, `"confidence":85`) {
		t.Fatalf("quick action = %s, %v", resp, err)
	}
}

func TestFallbackJSON(t *testing.T) {
	resp, err := FallbackJSON("show my portfolio", `{"positions":[{"quantity":10,"avg_price":0.5},{"quantity":20,"avg_price":0.25}]}`)
	if err != nil {
		t.Fatalf("FallbackJSON: %v", err)
	}
	if !strings.Contains(resp, "2 open positions") || !strings.Contains(resp, "Estimated value: $10.00") {
		t.Fatalf("unexpected portfolio reply: %s", resp)
	}

	resp, err = FallbackJSON("how does kelly work", "")
	if err != nil || !strings.Contains(resp, "50%") {
		t.Fatalf("unexpected kelly reply: %s, %v", resp, err)
	}

	if _, err := FallbackJSON("hi", "{"); err == nil {
		t.Fatalf("expected context decode error")
	}
}

func TestClassifyAndQuickActions(t *testing.T) {
	if got := Classify("Tell me about Kalshi"); got != "kalshi" {
		t.Fatalf("Classify = %q", got)
	}
	if got := Classify("hello"); got != "greeting" {
		t.Fatalf("Classify = %q", got)
	}
	ids, err := QuickActionIDsJSON()
	if err != nil || !strings.Contains(ids, "kelly_sizing") {
		t.Fatalf("QuickActionIDsJSON = %s, %v", ids, err)
	}
}
