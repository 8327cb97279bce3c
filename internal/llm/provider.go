package llm

import (
	"context"
	"time"

	"github.com/ppiankov/verity/internal/model"
)

// Generator produces free text from a system and a user prompt.
// Both remote providers and the local model implement it.
type Generator interface {
	// Name returns the backend name
	Name() string

	// Generate runs one completion
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is one generation call
type Request struct {
	// System is the system-role instruction
	System string

	// User is the user-turn content
	User string

	// Model overrides the configured model (provider-specific)
	Model string

	// Temperature is passed through as-is; zero means deterministic
	Temperature float32

	// MaxTokens limits the response length (0 uses the backend default)
	MaxTokens int

	// TopP is a sampling knob; zero leaves the backend default
	TopP float32

	// Local replaces the sampling above when the local model serves the
	// request. Remote backends never read it, so a request that falls back
	// to remote keeps the remote sampling.
	Local *LocalSampling
}

// LocalSampling holds sampling settings tuned for the local model
type LocalSampling struct {
	Temperature   float32
	TopP          float32
	RepeatPenalty float32
}

// Response is the generated text
type Response struct {
	// Text is the trimmed completion
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds remote provider configuration
type Config struct {
	// Provider name: "openai", "anthropic"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout bounds every API request
	Timeout time.Duration

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Timeout:  60 * time.Second,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:   modelConfig.Provider,
		Model:      modelConfig.Model,
		APIKey:     modelConfig.APIKey,
		BaseURL:    modelConfig.BaseURL,
		Timeout:    modelConfig.Timeout,
		HTTPProxy:  modelConfig.HTTPProxy,
		HTTPSProxy: modelConfig.HTTPSProxy,
		NoProxy:    modelConfig.NoProxy,
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

func pickModel(req Request, configured, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if configured != "" {
		return configured
	}
	return fallback
}

func pickMaxTokens(req Request, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}
