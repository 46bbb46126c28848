// Package mobile exposes the advisor through string-only calls suitable for
// gomobile bindings. No language model is used; replies come from templates.
package mobile

import (
	"context"
	"encoding/json"
	"fmt"

	"kalshorb/internal/store"
	"kalshorb/pkg/advisor"
	"kalshorb/pkg/kalshorb"
)

// Advisor wraps the dispatcher for gomobile bindings.
type Advisor struct {
	service *kalshorb.Service
	store   *store.SQLite
}

// Open initializes an advisor that records conversations in a SQLite file.
func Open(dbPath string) (*Advisor, error) {
	st, err := store.OpenSQLite(store.SQLiteOptions{Path: dbPath})
	if err != nil {
		return nil, err
	}
	return &Advisor{service: kalshorb.New(kalshorb.Options{Store: st}), store: st}, nil
}

// NewOffline returns an advisor that keeps no history.
func NewOffline() *Advisor {
	return &Advisor{service: kalshorb.New(kalshorb.Options{})}
}

// Close releases resources.
func (a *Advisor) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}

// HandleJSON accepts the same body as the HTTP endpoint and returns the
// response payload as JSON.
func (a *Advisor) HandleJSON(requestJSON string) (string, error) {
	var payload requestPayload
	if err := json.Unmarshal([]byte(requestJSON), &payload); err != nil {
		return "", fmt.Errorf("decode request: %w", err)
	}
	includeContext := true
	if payload.IncludeContext != nil {
		includeContext = *payload.IncludeContext
	}
	resp, err := a.service.Handle(context.Background(), kalshorb.InboundRequest{
		UserID:         payload.UserID,
		SessionID:      payload.SessionID,
		Message:        payload.Message,
		Action:         payload.Action,
		IncludeContext: includeContext,
	})
	if err != nil {
		return "", err
	}
	return marshalJSON(resp)
}

// SessionsJSON lists a user's sessions as JSON.
func (a *Advisor) SessionsJSON(userID string, limit int) (string, error) {
	data, err := a.service.Sessions(context.Background(), userID, limit)
	if err != nil {
		return "", err
	}
	return marshalJSON(data)
}

// TranscriptJSON returns a session's messages, oldest first, as JSON.
func (a *Advisor) TranscriptJSON(sessionID string, limit int) (string, error) {
	data, err := a.service.Transcript(context.Background(), sessionID, limit)
	if err != nil {
		return "", err
	}
	return marshalJSON(data)
}

// FallbackJSON renders the templated reply for message. contextJSON is an
// optional account snapshot ({"positions":[...],"risk_profile":{...},"portfolio":{...}}).
func FallbackJSON(message, contextJSON string) (string, error) {
	var account *advisor.AccountContext
	if contextJSON != "" {
		account = &advisor.AccountContext{}
		if err := json.Unmarshal([]byte(contextJSON), account); err != nil {
			return "", fmt.Errorf("decode context: %w", err)
		}
	}
	return marshalJSON(advisor.FallbackReply(message, account))
}

// Classify returns the fallback category for message.
func Classify(message string) string {
	return string(advisor.Classify(message))
}

// QuickActionIDsJSON lists the predefined quick-action ids.
func QuickActionIDsJSON() (string, error) {
	return marshalJSON(advisor.QuickActionIDs())
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type requestPayload struct {
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id"`
	Message        string `json:"message"`
	Action         string `json:"action"`
	IncludeContext *bool  `json:"include_context"`
}
