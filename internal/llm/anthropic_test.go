package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropic(url string) *anthropicClient {
	return &anthropicClient{
		apiKey:  "test-key",
		model:   "claude-test",
		baseURL: url,
		http:    http.DefaultClient,
		logger:  zerolog.Nop(),
	}
}

func anthropicReply(blocks ...anthropicContent) anthropicResponse {
	return anthropicResponse{ID: "msg_1", Model: "claude-test", Content: blocks}
}

func TestAnthropicDecideJoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var payload anthropicPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "claude-test", payload.Model)
		assert.Equal(t, "system text", payload.System)
		require.Len(t, payload.Messages, 1)
		assert.Equal(t, "user", payload.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(anthropicReply(
			anthropicContent{Type: "text", Text: `{"tool": "click",`},
			anthropicContent{Type: "text", Text: ` "role": "button"}`},
		))
	}))
	defer srv.Close()

	client := newTestAnthropic(srv.URL)
	text, err := client.Decide(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, `{"tool": "click", "role": "button"}`, text)
}

func TestAnthropicDecideRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"type": "rate_limit_error", "message": "slow down"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(anthropicReply(anthropicContent{Type: "text", Text: "ok"}))
	}))
	defer srv.Close()

	client := newTestAnthropic(srv.URL)
	text, err := client.Decide(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicDecideDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "bad payload"}}`))
	}))
	defer srv.Close()

	client := newTestAnthropic(srv.URL)
	_, err := client.Decide(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad payload")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicDecideEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(anthropicReply())
	}))
	defer srv.Close()

	client := newTestAnthropic(srv.URL)
	_, err := client.Decide(context.Background(), "s", "u")
	require.ErrorIs(t, err, ErrNoContent)
}

func TestNewClientProviderSwitch(t *testing.T) {
	t.Setenv(envOpenAIAPIKey, "sk-test")
	t.Setenv(envAnthropicAPIKey, "ak-test")
	t.Setenv(envOpenAIModel, "")
	t.Setenv(envAnthropicModel, "")

	client, err := NewClient("", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, defaultOpenAIModel, client.Name())

	client, err = NewClient("ANTHROPIC", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, defaultAnthropic, client.Name())

	_, err = NewClient("groq", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestNewClientMissingKey(t *testing.T) {
	t.Setenv(envOpenAIAPIKey, "")
	_, err := NewClient("openai", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), envOpenAIAPIKey)
}
