package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds run-level settings resolved from the environment. Provider
// credentials stay with the llm package; this covers the loop itself.
type Config struct {
	Provider   string
	Headless   bool
	MaxSteps   int
	MaxRetries int
}

const (
	defaultMaxSteps   = 20
	defaultMaxRetries = 3
)

// Load resolves configuration from environment variables. Zero values for
// AGENT_MAX_STEPS and AGENT_MAX_RETRIES are honored as-is; negatives are
// rejected.
func Load() (*Config, error) {
	cfg := &Config{
		Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
		Headless: getBoolEnv("AGENT_HEADLESS", true),
	}

	var err error
	if cfg.MaxSteps, err = getIntEnv("AGENT_MAX_STEPS", defaultMaxSteps); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getIntEnv("AGENT_MAX_RETRIES", defaultMaxRetries); err != nil {
		return nil, err
	}
	if err := ValidateBudgets(cfg.MaxSteps, cfg.MaxRetries); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateBudgets rejects negative step or retry budgets. Zero is a valid
// budget for both.
func ValidateBudgets(maxSteps, maxRetries int) error {
	if maxSteps < 0 {
		return fmt.Errorf("max steps must be >= 0, got %d", maxSteps)
	}
	if maxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", maxRetries)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return parsed, nil
}
