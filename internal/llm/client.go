package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/fernwehlabs/mnema/internal/config"
)

// ErrUnavailable reports that no language model is configured. Callers
// treat it as "no result", not as a fault.
var ErrUnavailable = errors.New("language model unavailable")

// Client is a minimal request/response completion interface. Invoke may
// fail, time out, or return malformed output; callers degrade rather
// than abort.
type Client interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// New selects a provider from config. An unconfigured provider yields a
// client whose every call returns ErrUnavailable, so read-only paths
// keep working.
func New(cfg config.ProviderConfig) Client {
	if strings.TrimSpace(cfg.APIKey) == "" && strings.TrimSpace(cfg.BaseURL) == "" {
		return unavailableClient{}
	}
	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(cfg)
	default:
		return NewAnthropicClient(cfg)
	}
}

type unavailableClient struct{}

func (unavailableClient) Invoke(context.Context, string) (string, error) {
	return "", ErrUnavailable
}
