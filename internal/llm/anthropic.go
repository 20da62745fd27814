package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	envAnthropicAPIKey = "ANTHROPIC_API_KEY"
	envAnthropicModel  = "ANTHROPIC_MODEL"
	defaultAnthropic   = "claude-sonnet-4-5-20250929"

	anthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"

	anthropicMaxTokens   = 500
	anthropicTimeoutSecs = 60
	anthropicTemperature = 0.1

	anthropicMaxRetries     = 3
	anthropicRetryBaseDelay = 500 * time.Millisecond
	anthropicMaxRequestSize = 200000 // ~200KB
)

type anthropicClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

type anthropicPayload struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv(envAnthropicAPIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envAnthropicAPIKey)
	}
	model := strings.TrimSpace(os.Getenv(envAnthropicModel))
	if model == "" {
		model = defaultAnthropic
	}
	model = strings.Trim(model, "\"'")
	return &anthropicClient{
		apiKey:  key,
		model:   model,
		baseURL: anthropicAPIURL,
		http: &http.Client{
			Timeout: anthropicTimeoutSecs * time.Second,
		},
		logger: zerolog.Nop(),
	}, nil
}

// NewAnthropicWithLogger creates client with logger for detailed tracing.
func NewAnthropicWithLogger(logger zerolog.Logger) (Client, error) {
	client, err := NewAnthropicFromEnv()
	if err != nil {
		return nil, err
	}
	if ac, ok := client.(*anthropicClient); ok {
		ac.logger = logger
	}
	return client, nil
}

func (c *anthropicClient) Name() string { return c.model }

// Decide sends the prompt pair to the Messages API. The Messages API has no
// JSON response mode, so the system prompt alone carries the format contract.
func (c *anthropicClient) Decide(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(systemPrompt) > anthropicMaxRequestSize {
		c.logger.Warn().Int("size", len(systemPrompt)).Msg("system prompt too large, truncating")
		systemPrompt = systemPrompt[:anthropicMaxRequestSize] + "... [truncated]"
	}
	if len(userPrompt) > anthropicMaxRequestSize {
		c.logger.Warn().Int("size", len(userPrompt)).Msg("user prompt too large, truncating")
		userPrompt = userPrompt[:anthropicMaxRequestSize] + "... [truncated]"
	}

	payload := anthropicPayload{
		Model:       c.model,
		MaxTokens:   anthropicMaxTokens,
		Temperature: anthropicTemperature,
		System:      systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicContent{{Type: "text", Text: userPrompt}}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= anthropicMaxRetries; attempt++ {
		if attempt > 0 {
			delay := anthropicRetryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying Anthropic API call")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			if attempt < anthropicMaxRetries {
				continue
			}
			return "", lastErr
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if attempt < anthropicMaxRetries {
				continue
			}
			return "", lastErr
		}

		if resp.StatusCode >= 400 {
			var apiResp anthropicResponse
			msg := string(data)
			if err := json.Unmarshal(data, &apiResp); err == nil && apiResp.Error != nil {
				msg = apiResp.Error.Message
			}
			if len(msg) > 500 {
				msg = msg[:500] + "..."
			}
			lastErr = fmt.Errorf("anthropic %d: %s", resp.StatusCode, msg)

			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("error_msg", msg).
				Int("attempt", attempt).
				Msg("Anthropic API error")

			// Retry on 429 (rate limit) and 5xx errors
			if (resp.StatusCode == 429 || resp.StatusCode >= 500) && attempt < anthropicMaxRetries {
				continue
			}
			return "", lastErr
		}

		var apiResp anthropicResponse
		if err := json.Unmarshal(data, &apiResp); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}

		var sb strings.Builder
		for _, block := range apiResp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			return "", ErrNoContent
		}

		c.logger.Debug().
			Int("input_tokens", apiResp.Usage.InputTokens).
			Int("output_tokens", apiResp.Usage.OutputTokens).
			Str("response_preview", truncateString(text, 200)).
			Msg("Anthropic decision response")

		return text, nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
