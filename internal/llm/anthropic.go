package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"kalshorb/pkg/advisor"
	"kalshorb/pkg/kalshorb"
)

type anthropicCompleter struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
}

func newAnthropic(cfg Config, logger *slog.Logger) *anthropicCompleter {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		anthropicoption.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, anthropicoption.WithBaseURL(base))
	}
	return &anthropicCompleter{
		client: anthropic.NewClient(opts...),
		model:  modelOrDefault(cfg.Model, defaultAnthropicModel),
		logger: logger,
	}
}

func (c *anthropicCompleter) Complete(ctx context.Context, req kalshorb.CompletionRequest) (string, error) {
	logRequest(c.logger, ProviderAnthropic, c.model, req)

	turns := leadingUserTurns(req.Messages)
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == advisor.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages:    messages,
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", upstreamError(ProviderAnthropic, err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return checkCompletion(b.String())
}
