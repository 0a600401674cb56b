package llmgw

import (
	"context"
	"fmt"
)

// ProviderConfig is the subset of internal/config.LLMConfig needed to
// select and construct a provider.
type ProviderConfig struct {
	Provider string // "anthropic" | "bedrock"
	APIKey   string
	Region   string
	Model    string
}

// NewProvider selects and constructs the configured backend. An
// unrecognized provider name is a startup-time configuration error, not
// a pipeline-runtime one.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model), nil
	case "bedrock":
		return NewBedrockProvider(ctx, cfg.Region, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
