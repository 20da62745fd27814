package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	envOpenAIAPIKey    = "OPENAI_API_KEY"
	envOpenAIModel     = "OPENAI_MODEL"
	defaultOpenAIModel = "gpt-4o-mini"

	openAIMaxTokens   = 500
	openAITemperature = 0.1
)

type openAIClient struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

func NewOpenAIFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv(envOpenAIAPIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envOpenAIAPIKey)
	}
	model := strings.TrimSpace(os.Getenv(envOpenAIModel))
	if model == "" {
		model = defaultOpenAIModel
	}
	model = strings.Trim(model, "\"'")
	return &openAIClient{
		client: openai.NewClient(key),
		model:  model,
		logger: zerolog.Nop(),
	}, nil
}

func NewOpenAIWithLogger(logger zerolog.Logger) (Client, error) {
	client, err := NewOpenAIFromEnv()
	if err != nil {
		return nil, err
	}
	if oc, ok := client.(*openAIClient); ok {
		oc.logger = logger
	}
	return client, nil
}

func (c *openAIClient) Name() string { return c.model }

// Decide sends the prompt pair in JSON mode so the model is constrained to
// reply with a single JSON object.
func (c *openAIClient) Decide(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.logger.Debug().
		Str("model", c.model).
		Int("system_len", len(systemPrompt)).
		Int("user_len", len(userPrompt)).
		Msg("OpenAI decision request")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: openAITemperature,
		MaxTokens:   openAIMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w (no choices)", ErrNoContent)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrNoContent
	}

	c.logger.Debug().
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("response_preview", truncateString(content, 200)).
		Msg("OpenAI decision response")

	return content, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
