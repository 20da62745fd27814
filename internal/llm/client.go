package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoContent marks a reply that arrived over the wire but carried no text.
// Callers use it to tell "oracle said nothing" apart from transport failure.
var ErrNoContent = errors.New("llm: no content in response")

// Client is the decision oracle. One call, free text in, free text out;
// retry and parsing policy live with the caller, not here.
type Client interface {
	// Decide sends a system/user prompt pair and returns the raw reply text.
	// Implementations request JSON-constrained output where the provider
	// supports it, and return ErrNoContent when the reply is empty.
	Decide(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// NewClient creates a client for the named provider. Empty means OpenAI.
func NewClient(provider string, logger zerolog.Logger) (Client, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		return NewOpenAIWithLogger(logger)
	case "anthropic":
		return NewAnthropicWithLogger(logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'openai' or 'anthropic')", provider)
	}
}
