// Package llm talks to text completion services: prompt in, free-form text out.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/itsm-triage/internal/config"
)

// Supported provider names for COMPLETION_PROVIDER.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOffline   = "offline"
)

// Params are the generation parameters sent with every prompt.
type Params struct {
	Temperature     float64
	MaxOutputTokens int
}

// Client is a handle on one completion service. It is constructed once and
// passed to whoever needs it; nothing in this package keeps a global one.
type Client interface {
	Name() string
	Complete(ctx context.Context, prompt string, params Params) (string, error)
	Close() error
}

// Pinger is implemented by clients that can check their service is up
// without spending a completion.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.CompletionConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini, "":
		if cfg.GeminiAPIKey == "" {
			return nil, missingKey("GEMINI_API_KEY", ProviderGemini)
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, missingKey("OPENAI_API_KEY", ProviderOpenAI)
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, missingKey("ANTHROPIC_API_KEY", ProviderAnthropic)
		}
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, ""), nil
	case ProviderOllama:
		return NewOllama(cfg.OllamaHost, cfg.OllamaModel, cfg.Timeout())
	case ProviderOffline:
		return NewOffline(), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}

func missingKey(env, provider string) error {
	return fmt.Errorf("%s is required for completion provider %q", env, provider)
}
