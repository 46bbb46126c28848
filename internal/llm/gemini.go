package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"kalshorb/pkg/advisor"
	"kalshorb/pkg/kalshorb"
)

type geminiCompleter struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func newGemini(ctx context.Context, cfg Config, logger *slog.Logger) (*geminiCompleter, error) {
	baseURL, apiVersion, err := parseGeminiBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &geminiCompleter{
		client: client,
		model:  modelOrDefault(cfg.Model, defaultGeminiModel),
		logger: logger,
	}, nil
}

func (c *geminiCompleter) Complete(ctx context.Context, req kalshorb.CompletionRequest) (string, error) {
	logRequest(c.logger, ProviderGemini, c.model, req)

	turns := leadingUserTurns(req.Messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == advisor.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		},
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.TopP > 0 {
		config.TopP = genai.Ptr(float32(req.TopP))
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", upstreamError(ProviderGemini, err)
	}
	return checkCompletion(resp.Text())
}

// parseGeminiBaseURL splits an endpoint such as
// https://host/prefix/v1beta into the SDK's base URL and API version.
func parseGeminiBaseURL(endpoint string) (string, string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		trimmed = defaultGeminiBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("invalid gemini endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("invalid gemini endpoint scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("invalid gemini endpoint host")
	}

	var segments []string
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		segments = strings.Split(path, "/")
	}

	apiVersion := "v1beta"
	prefix := segments
	for i, segment := range segments {
		if strings.HasPrefix(strings.ToLower(segment), "v1") {
			apiVersion = segment
			prefix = segments[:i]
			break
		}
	}

	baseURL := fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host)
	if p := strings.Join(prefix, "/"); p != "" {
		baseURL += p + "/"
	}
	return baseURL, apiVersion, nil
}
