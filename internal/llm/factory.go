package llm

import "fmt"

// NewProvider creates a provider instance from its config. name is the
// config key the instance was registered under.
func NewProvider(name string, cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(name, cfg)
	case "openai", "":
		return NewOpenAIProvider(name, cfg)
	default:
		return nil, fmt.Errorf("unknown provider type %q for %s", cfg.Type, name)
	}
}
