package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"kalshorb/pkg/kalshorb"
)

// Advisor is the dispatcher behind the HTTP surface.
type Advisor interface {
	Handle(ctx context.Context, req kalshorb.InboundRequest) (*kalshorb.Response, error)
	Sessions(ctx context.Context, userID string, limit int) ([]kalshorb.SessionRecord, error)
	Transcript(ctx context.Context, sessionID string, limit int) ([]kalshorb.MessageRecord, error)
}

// CORSOptions configures cross-origin handling. Empty fields take the
// permissive defaults of DefaultCORS.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORS allows every origin with the headers browser clients send.
func DefaultCORS() CORSOptions {
	return CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "GET", "OPTIONS", "PUT", "DELETE", "PATCH"},
		AllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
		MaxAge:         86400,
	}
}

func (o CORSOptions) withDefaults() CORSOptions {
	def := DefaultCORS()
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = def.AllowedOrigins
	}
	if len(o.AllowedMethods) == 0 {
		o.AllowedMethods = def.AllowedMethods
	}
	if len(o.AllowedHeaders) == 0 {
		o.AllowedHeaders = def.AllowedHeaders
	}
	if o.MaxAge <= 0 {
		o.MaxAge = def.MaxAge
	}
	return o
}

// Options configures NewRouter.
type Options struct {
	Logger *slog.Logger
	CORS   CORSOptions
}

// NewRouter builds the HTTP API router.
func NewRouter(advisor Advisor, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOpts := opts.CORS.withDefaults()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOpts.AllowedOrigins,
		AllowedMethods:   corsOpts.AllowedMethods,
		AllowedHeaders:   corsOpts.AllowedHeaders,
		AllowCredentials: corsOpts.AllowCredentials,
		MaxAge:           corsOpts.MaxAge,
	}))

	h := &handler{advisor: advisor, cors: corsOpts}

	r.Get("/api/health", h.health)

	// Advisor endpoint, also mounted at the root for clients that post to "/".
	for _, pattern := range []string{"/api/kalshorb", "/"} {
		r.Post(pattern, h.kalshorb)
		r.Options(pattern, h.preflight)
	}

	// Sessions
	r.Get("/api/sessions", h.listSessions)
	r.Get("/api/sessions/{id}/messages", h.sessionMessages)

	return r
}

type handler struct {
	advisor Advisor
	cors    CORSOptions
}

// setCORSHeaders answers an OPTIONS request that lacks the preflight headers
// cors.Handler reacts to.
func (h *handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	if origin := h.allowedOrigin(r.Header.Get("Origin")); origin != "" {
		header.Set("Access-Control-Allow-Origin", origin)
	}
	header.Set("Access-Control-Allow-Headers", strings.Join(h.cors.AllowedHeaders, ", "))
	header.Set("Access-Control-Allow-Methods", strings.Join(h.cors.AllowedMethods, ", "))
	header.Set("Access-Control-Max-Age", strconv.Itoa(h.cors.MaxAge))
	if h.cors.AllowCredentials {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (h *handler) allowedOrigin(origin string) string {
	for _, allowed := range h.cors.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
