package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"kalshorb/pkg/advisor"
	"kalshorb/pkg/kalshorb"
)

// openAICompatible speaks the chat completions protocol shared by OpenAI and
// OpenRouter.
type openAICompatible struct {
	client   openai.Client
	provider string
	model    string
	logger   *slog.Logger
}

func newOpenAICompatible(cfg Config, provider, baseURL, model string, logger *slog.Logger) (*openAICompatible, error) {
	base, err := normalizeBaseURL(cfg.BaseURL, baseURL)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithBaseURL(base),
		option.WithMaxRetries(0),
	}
	if provider == ProviderOpenRouter {
		referer := cfg.Referer
		if referer == "" {
			referer = DefaultReferer
		}
		title := cfg.Title
		if title == "" {
			title = DefaultTitle
		}
		opts = append(opts,
			option.WithHeader("HTTP-Referer", referer),
			option.WithHeader("X-Title", title),
		)
	}
	return &openAICompatible{
		client:   openai.NewClient(opts...),
		provider: provider,
		model:    modelOrDefault(cfg.Model, model),
		logger:   logger,
	}, nil
}

func (c *openAICompatible) Complete(ctx context.Context, req kalshorb.CompletionRequest) (string, error) {
	logRequest(c.logger, c.provider, c.model, req)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	messages = append(messages, openai.SystemMessage(req.System))
	for _, turn := range req.Messages {
		if turn.Role == advisor.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(turn.Content))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", upstreamError(c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", kalshorb.ErrEmptyCompletion
	}
	return checkCompletion(resp.Choices[0].Message.Content)
}
