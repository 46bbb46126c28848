package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kalshorb/pkg/kalshorb"
)

type kalshorbPayload struct {
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id"`
	Message        string `json:"message"`
	Action         string `json:"action"`
	IncludeContext *bool  `json:"include_context"`
}

func (p kalshorbPayload) inbound() kalshorb.InboundRequest {
	includeContext := true
	if p.IncludeContext != nil {
		includeContext = *p.IncludeContext
	}
	return kalshorb.InboundRequest{
		UserID:         p.UserID,
		SessionID:      p.SessionID,
		Message:        p.Message,
		Action:         p.Action,
		IncludeContext: includeContext,
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) preflight(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w, r)
	w.WriteHeader(http.StatusOK)
}

// kalshorb reports every failure as 500 with the public error code.
func (h *handler) kalshorb(w http.ResponseWriter, r *http.Request) {
	var payload kalshorbPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := h.advisor.Handle(r.Context(), payload.inbound())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeSuccess(w, resp)
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	sessions, err := h.advisor.Sessions(r.Context(), query.Get("user_id"), limit)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, sessions)
}

func (h *handler) sessionMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	messages, err := h.advisor.Transcript(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeSuccess(w, messages)
}

// decodeJSON tolerates unknown fields; clients send extra keys freely.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}
	return err
}

// parseLimit returns 0 for an empty value, leaving the default to the service.
func parseLimit(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, kalshorb.NewError(kalshorb.ErrCodeInvalidInput, "limit must be an integer")
	}
	return i, nil
}
