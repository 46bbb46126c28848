// Package llm adapts hosted chat-completion APIs to kalshorb.Completer.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"kalshorb/pkg/advisor"
	"kalshorb/pkg/kalshorb"
)

// Supported providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"

	DefaultOpenRouterModel = "mistralai/mistral-7b-instruct"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultAnthropicModel  = "claude-3-5-haiku-latest"
	defaultGeminiModel     = "gemini-2.0-flash"

	DefaultReferer = "https://kalshorb.space.minimax.io"
	DefaultTitle   = "Kalshorb AI Advisor"
)

// Config selects and configures one upstream provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	// Referer and Title are sent as OpenRouter attribution headers.
	Referer string
	Title   string
	// Timeout bounds a single completion. Zero means no timeout.
	Timeout time.Duration
}

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// New builds the Completer for cfg. Without an API key the returned
// Completer fails every call with kalshorb.ErrNotConfigured so callers fall
// back to templated replies.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (kalshorb.Completer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenRouter
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Info("llm api key not set, replies use templates", "provider", provider)
		return unconfigured{}, nil
	}

	var (
		completer kalshorb.Completer
		err       error
	)
	switch provider {
	case ProviderOpenRouter:
		completer, err = newOpenAICompatible(cfg, provider, defaultOpenRouterBaseURL, DefaultOpenRouterModel, logger)
	case ProviderOpenAI:
		completer, err = newOpenAICompatible(cfg, provider, defaultOpenAIBaseURL, defaultOpenAIModel, logger)
	case ProviderAnthropic:
		completer = newAnthropic(cfg, logger)
	case ProviderGemini:
		completer, err = newGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		completer = timed{next: completer, timeout: cfg.Timeout}
	}
	return completer, nil
}

type unconfigured struct{}

func (unconfigured) Complete(context.Context, kalshorb.CompletionRequest) (string, error) {
	return "", kalshorb.ErrNotConfigured
}

type timed struct {
	next    kalshorb.Completer
	timeout time.Duration
}

func (t timed) Complete(ctx context.Context, req kalshorb.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}

// normalizeBaseURL accepts a bare host, an API root or a full chat completions
// endpoint and returns the API root with a trailing slash.
func normalizeBaseURL(raw, fallback string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = fallback
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(strings.ToLower(trimmed), "/chat/completions") {
		trimmed = trimmed[:len(trimmed)-len("/chat/completions")]
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid base_url scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid base_url host")
	}
	return trimmed + "/", nil
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return defaultOpenAIModel
	case ProviderAnthropic:
		return defaultAnthropicModel
	case ProviderGemini:
		return defaultGeminiModel
	default:
		return DefaultOpenRouterModel
	}
}

func modelOrDefault(model, fallback string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return fallback
}

func checkCompletion(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", kalshorb.ErrEmptyCompletion
	}
	return content, nil
}

func upstreamError(provider string, err error) error {
	return kalshorb.WrapError(kalshorb.ErrCodeUpstream, provider+" completion failed", err)
}

func logRequest(logger *slog.Logger, provider, model string, req kalshorb.CompletionRequest) {
	logger.Debug("llm request",
		"provider", provider,
		"model", model,
		"turns", len(req.Messages),
		"max_tokens", req.MaxTokens,
		"system_len", len(req.System),
	)
}

// leadingUserTurns drops assistant turns before the first user turn, for
// providers that require a conversation to open with the user.
func leadingUserTurns(turns []advisor.Turn) []advisor.Turn {
	for i, t := range turns {
		if t.Role == advisor.RoleUser {
			return turns[i:]
		}
	}
	return nil
}
